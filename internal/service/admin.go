package service

import (
	"context"
	"errors"
	"fmt"

	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const adminListLimit = 1000

type AdminService struct {
	repo AdminRepository
}

func NewAdminService(repo AdminRepository) *AdminService {
	return &AdminService{repo: repo}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.ListUsers(ctx, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *AdminService) ListTransactions(ctx context.Context, txType *model.TransactionType) ([]*model.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, nil, txType, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *AdminService) Stats(ctx context.Context) (*model.PlatformStats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (s *AdminService) MakeAdmin(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.SetAdmin(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to grant admin: %w", err)
	}
	logger.Logger().Info("admin granted", zap.String("user_id", userID.String()))
	return nil
}

// PurgeUser removes a member with everything it owns. Tree slots and sponsor links
// pointing at it are cleared.
func (s *AdminService) PurgeUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.PurgeUser(ctx, userID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrUserNotFound
		case errors.Is(err, repository.ErrProtectedUser):
			return ErrProtectedUser
		}
		return fmt.Errorf("failed to purge user: %w", err)
	}
	logger.Logger().Info("user purged", zap.String("user_id", userID.String()))
	return nil
}
