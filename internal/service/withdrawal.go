package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WithdrawalInput struct {
	Amount        decimal.Decimal
	WalletAddress string
	CryptoType    string
}

type WithdrawalService struct {
	repo     WithdrawalRepository
	notifier Notifier
}

func NewWithdrawalService(repo WithdrawalRepository, notifier Notifier) *WithdrawalService {
	return &WithdrawalService{
		repo:     repo,
		notifier: notifierOrNop(notifier),
	}
}

// RequestWithdrawal reserves the amount from the wallet and files a pending withdrawal.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*model.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	t := &model.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          model.TxWithdrawal,
		Amount:        in.Amount,
		Status:        model.TxPending,
		Description:   fmt.Sprintf("Withdrawal to %s", strings.ToUpper(in.CryptoType)),
		CryptoType:    in.CryptoType,
		WalletAddress: in.WalletAddress,
		CreatedAt:     utcNow(),
	}

	if err := s.repo.CreateWithdrawal(ctx, t); err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientFunds):
			return nil, ErrInsufficientFunds
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	logger.Logger().Info("withdrawal requested",
		zap.String("transaction_id", t.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", t.Amount.String()),
	)
	s.notifier.Publish(Event{
		Kind:    EventWithdrawalRequested,
		UserID:  userID,
		Amount:  t.Amount,
		Message: fmt.Sprintf("withdrawal of %s %s to %s", t.Amount.StringFixed(2), in.CryptoType, in.WalletAddress),
		At:      t.CreatedAt,
	})

	return t, nil
}

func (s *WithdrawalService) ApproveWithdrawal(ctx context.Context, txID uuid.UUID, txHash string) (*model.Transaction, error) {
	return s.settle(ctx, txID, model.TxCompleted, txHash)
}

// RejectWithdrawal returns the reserved amount to the wallet.
func (s *WithdrawalService) RejectWithdrawal(ctx context.Context, txID uuid.UUID) (*model.Transaction, error) {
	return s.settle(ctx, txID, model.TxRejected, "")
}

func (s *WithdrawalService) settle(ctx context.Context, txID uuid.UUID, status model.TransactionStatus, txHash string) (*model.Transaction, error) {
	t, err := s.repo.SettleWithdrawal(ctx, txID, status, txHash)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to settle withdrawal: %w", err)
	}

	if status == model.TxCompleted {
		metrics.PayoutsTotal.WithLabelValues(string(model.TxWithdrawal)).Add(t.Amount.InexactFloat64())
	}
	logger.Logger().Info("withdrawal settled",
		zap.String("transaction_id", txID.String()),
		zap.String("user_id", t.UserID.String()),
		zap.String("status", string(status)),
	)
	s.notifier.Publish(Event{
		Kind:    EventWithdrawalSettled,
		UserID:  t.UserID,
		Amount:  t.Amount,
		Message: string(status),
		At:      utcNow(),
	})

	return t, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]*model.Transaction, error) {
	txType := model.TxWithdrawal
	txs, err := s.repo.ListTransactions(ctx, &userID, &txType, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return txs, nil
}
