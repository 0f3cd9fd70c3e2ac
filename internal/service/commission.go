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

type CommissionService struct {
	repo     CommissionRepository
	plan     model.Plan
	notifier Notifier
}

func NewCommissionService(repo CommissionRepository, plan model.Plan) *CommissionService {
	return &CommissionService{
		repo:     repo,
		plan:     plan,
		notifier: nopNotifier{},
	}
}

func (s *CommissionService) SetNotifier(n Notifier) {
	s.notifier = notifierOrNop(n)
}

// Pay credits every ancestor of the investor with amount times the package rate.
func (s *CommissionService) Pay(ctx context.Context, investorID uuid.UUID, packageKey string, amount decimal.Decimal) (*model.CommissionReport, error) {
	pkg, ok := s.plan.Package(strings.ToLower(packageKey))
	if !ok {
		return nil, ErrInvalidPackage
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	investor, err := s.repo.GetUserByID(ctx, investorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get investor: %w", err)
	}

	log := logger.Logger()
	commission := amount.Mul(pkg.CommissionRate)
	report := &model.CommissionReport{Rate: pkg.CommissionRate}
	guard := newWalkGuard("commission", s.plan.MaxHops)
	if err := guard.step(investorID); err != nil {
		return report, err
	}

	next := investor.UplineID
	for level := 1; next != nil; level++ {
		if s.plan.CommissionDepth > 0 && level > s.plan.CommissionDepth {
			report.Stopped = StopDepthLimit
			return report, nil
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		receiver := *next
		if err := guard.step(receiver); err != nil {
			return report, err
		}

		source := investorID
		next, err = s.repo.CreditCommission(ctx, &model.Transaction{
			ID:           uuid.New(),
			UserID:       receiver,
			Type:         model.TxCommission,
			Amount:       commission,
			Status:       model.TxCompleted,
			Description:  levelLabel(level),
			Level:        level,
			SourceUserID: &source,
			CreatedAt:    utcNow(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Warn("commission walk stopped at missing ancestor",
					zap.String("ancestor_id", receiver.String()),
					zap.Int("level", level),
				)
				report.Stopped = StopMissingUpline
				return report, nil
			}
			return report, fmt.Errorf("failed to credit commission: %w", err)
		}

		report.Payouts = append(report.Payouts, model.CommissionPayout{UserID: receiver, Level: level, Amount: commission})
		metrics.PayoutsTotal.WithLabelValues(string(model.TxCommission)).Add(commission.InexactFloat64())
		log.Info("commission paid",
			zap.String("user_id", receiver.String()),
			zap.String("source_user_id", investorID.String()),
			zap.Int("level", level),
			zap.String("amount", commission.String()),
		)
		s.notifier.Publish(Event{
			Kind:    EventCommissionPaid,
			UserID:  receiver,
			Amount:  commission,
			Message: levelLabel(level),
			At:      utcNow(),
		})
	}

	report.Stopped = StopRoot
	return report, nil
}

func levelLabel(level int) string {
	if level == 1 {
		return "direct"
	}
	return fmt.Sprintf("level %d", level)
}
