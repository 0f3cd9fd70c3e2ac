package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProfitService struct {
	repo     ProfitRepository
	plan     model.Plan
	notifier Notifier
	now      func() time.Time

	// one distribution at a time
	mu sync.Mutex
}

func NewProfitService(repo ProfitRepository, plan model.Plan, notifier Notifier) *ProfitService {
	return &ProfitService{
		repo:     repo,
		plan:     plan,
		notifier: notifierOrNop(notifier),
		now:      utcNow,
	}
}

// DistributeWeekly pays one profit period to every active investment that was not
// paid during the last profit interval. Re-running it inside the interval pays nothing.
func (s *ProfitService) DistributeWeekly(ctx context.Context) (*model.WeeklyProfitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.Logger()
	investments, err := s.repo.ListActiveInvestments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}

	now := s.now()
	notBefore := now.Add(-s.plan.ProfitInterval)
	report := &model.WeeklyProfitReport{TotalAmount: decimal.Zero}

	for _, inv := range investments {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		pkg, ok := s.plan.Package(inv.Package)
		if !ok {
			log.Warn("skipping investment with unknown package",
				zap.String("investment_id", inv.ID.String()),
				zap.String("package", inv.Package),
			)
			report.Skipped++
			continue
		}

		amount := inv.Amount.Mul(pkg.WeeklyProfitRate)
		paid, err := s.repo.CreditWeeklyProfit(ctx, inv, &model.Transaction{
			ID:          uuid.New(),
			UserID:      inv.UserID,
			Type:        model.TxWeeklyProfit,
			Amount:      amount,
			Status:      model.TxCompleted,
			Description: fmt.Sprintf("Weekly profit (%s)", pkg.Name),
			CreatedAt:   now,
		}, notBefore)
		if err != nil {
			return report, fmt.Errorf("failed to credit weekly profit: %w", err)
		}
		if !paid {
			report.Skipped++
			continue
		}

		report.DistributedTo++
		report.TotalAmount = report.TotalAmount.Add(amount)
		s.notifier.Publish(Event{
			Kind:    EventWeeklyProfitPaid,
			UserID:  inv.UserID,
			Amount:  amount,
			Message: "Weekly profit",
			At:      now,
		})
	}

	metrics.PayoutsTotal.WithLabelValues(string(model.TxWeeklyProfit)).Add(report.TotalAmount.InexactFloat64())
	log.Info("weekly profit distributed",
		zap.Int("distributed_to", report.DistributedTo),
		zap.Int("skipped", report.Skipped),
		zap.String("total", report.TotalAmount.String()),
	)
	return report, nil
}

// Schedule registers the distribution on c using a standard five-field cron spec.
func (s *ProfitService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.DistributeWeekly(ctx); err != nil {
			logger.Logger().Error("scheduled weekly profit failed", zap.Error(err))
		}
	})
}
