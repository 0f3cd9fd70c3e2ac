package mocks

import (
	"context"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockCommissionRepository struct {
	mock.Mock
}

func (m *MockCommissionRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockCommissionRepository) CreditCommission(ctx context.Context, t *model.Transaction) (*uuid.UUID, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

type MockWithdrawalRepository struct {
	mock.Mock
}

func (m *MockWithdrawalRepository) CreateWithdrawal(ctx context.Context, t *model.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) SettleWithdrawal(ctx context.Context, id uuid.UUID, status model.TransactionStatus, txHash string) (*model.Transaction, error) {
	args := m.Called(ctx, id, status, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockWithdrawalRepository) ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, userID, txType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

type MockAdminRepository struct {
	mock.Mock
}

func (m *MockAdminRepository) ListUsers(ctx context.Context, limit int) ([]*model.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}

func (m *MockAdminRepository) ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, userID, txType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockAdminRepository) GetStats(ctx context.Context) (*model.PlatformStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PlatformStats), args.Error(1)
}

func (m *MockAdminRepository) SetAdmin(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAdminRepository) PurgeUser(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
