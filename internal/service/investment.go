package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const listLimit = 100

type InvestmentRequestInput struct {
	Package  string
	FullName string
	Username string
	Email    string
	Whatsapp string
	Platform string
}

type InvestmentService struct {
	repo        InvestmentRepository
	plan        model.Plan
	commissions *CommissionService
	volume      *VolumeService
	notifier    Notifier
	now         func() time.Time

	onChange func(ctx context.Context)
}

func NewInvestmentService(repo InvestmentRepository, plan model.Plan, commissions *CommissionService, volume *VolumeService, notifier Notifier) *InvestmentService {
	notifier = notifierOrNop(notifier)
	commissions.SetNotifier(notifier)
	volume.SetNotifier(notifier)

	return &InvestmentService{
		repo:        repo,
		plan:        plan,
		commissions: commissions,
		volume:      volume,
		notifier:    notifier,
		now:         utcNow,

		onChange: func(context.Context) {},
	}
}

func (s *InvestmentService) Packages() []model.Package {
	return s.plan.Packages
}

// Request files a pending purchase of a package at the package's base amount.
func (s *InvestmentService) Request(ctx context.Context, userID uuid.UUID, in InvestmentRequestInput) (*model.InvestmentRequest, error) {
	pkg, ok := s.plan.Package(strings.ToLower(strings.TrimSpace(in.Package)))
	if !ok {
		return nil, ErrInvalidPackage
	}

	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	req := &model.InvestmentRequest{
		ID:        uuid.New(),
		UserID:    userID,
		FullName:  in.FullName,
		Username:  in.Username,
		Email:     in.Email,
		Whatsapp:  in.Whatsapp,
		Platform:  in.Platform,
		Package:   pkg.Key,
		Amount:    pkg.Amount,
		Status:    model.RequestPending,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateInvestmentRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create investment request: %w", err)
	}

	logger.Logger().Info("investment requested",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("package", pkg.Key),
	)
	s.notifier.Publish(Event{
		Kind:    EventInvestmentRequested,
		UserID:  userID,
		Amount:  req.Amount,
		Message: fmt.Sprintf("%s requested the %s package (%s, %s)", in.FullName, pkg.Name, in.Email, in.Whatsapp),
		At:      req.CreatedAt,
	})

	return req, nil
}

// Approve books the investment and then pays commissions and propagates volume.
// Once the approval is committed, walk failures are reported but never undo it.
func (s *InvestmentService) Approve(ctx context.Context, requestID uuid.UUID) (*model.ApprovalReport, error) {
	approval, err := s.repo.ApproveInvestmentRequest(ctx, requestID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to approve investment request: %w", err)
	}
	req, inv := approval.Request, approval.Investment

	log := logger.Logger().With(
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()),
	)
	log.Info("investment approved", zap.String("package", req.Package), zap.String("amount", req.Amount.String()))
	metrics.InvestmentsApproved.WithLabelValues(req.Package).Inc()

	report := &model.ApprovalReport{Investment: inv}

	report.Commissions, err = s.commissions.Pay(ctx, req.UserID, req.Package, req.Amount)
	if err != nil {
		log.Error("commission distribution failed", zap.Error(err))
	}

	// the slot seen at commit; a later placement migrates this amount itself
	report.Propagation, err = s.volume.propagateSlot(ctx, req.UserID, approval.UplineID, approval.Position, req.Amount)
	if err != nil {
		log.Error("volume propagation failed", zap.Error(err))
	}

	s.onChange(ctx)
	s.notifier.Publish(Event{
		Kind:    EventInvestmentApproved,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Message: fmt.Sprintf("%s package approved", strings.ToUpper(req.Package)),
		At:      inv.InvestedAt,
	})

	return report, nil
}

func (s *InvestmentService) Reject(ctx context.Context, requestID uuid.UUID) (*model.InvestmentRequest, error) {
	req, err := s.repo.RejectInvestmentRequest(ctx, requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to reject investment request: %w", err)
	}

	logger.Logger().Info("investment rejected", zap.String("request_id", requestID.String()))
	return req, nil
}

func (s *InvestmentService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.InvestmentRequest, error) {
	reqs, err := s.repo.ListInvestmentRequests(ctx, &userID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list investment requests: %w", err)
	}
	return reqs, nil
}

func (s *InvestmentService) ListAll(ctx context.Context) ([]*model.InvestmentRequest, error) {
	reqs, err := s.repo.ListInvestmentRequests(ctx, nil, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list investment requests: %w", err)
	}
	return reqs, nil
}
