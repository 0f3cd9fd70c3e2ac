package service

import (
	"context"
	"errors"
	"fmt"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StopRoot          = "root"
	StopUnplaced      = "unplaced"
	StopMissingUpline = "missing_upline"
	StopDepthLimit    = "depth_limit"
)

type VolumeService struct {
	repo      VolumeRepository
	pairUnit  decimal.Decimal
	pairValue decimal.Decimal
	maxHops   int
	notifier  Notifier
}

func NewVolumeService(repo VolumeRepository, plan model.Plan) *VolumeService {
	return &VolumeService{
		repo:      repo,
		pairUnit:  plan.PairUnit,
		pairValue: plan.PairValue,
		maxHops:   plan.MaxHops,
		notifier:  nopNotifier{},
	}
}

// SetNotifier routes bonus events to n.
func (s *VolumeService) SetNotifier(n Notifier) {
	s.notifier = notifierOrNop(n)
}

// BinaryEntitlement is the total binary earnings owed for the given leg volumes:
// one pair value for every full pair unit on the weaker leg.
func (s *VolumeService) BinaryEntitlement(v model.LegVolumes) decimal.Decimal {
	weak := decimal.Min(v.Left, v.Right)
	if !weak.IsPositive() || !s.pairUnit.IsPositive() {
		return decimal.Zero
	}
	return weak.Div(s.pairUnit).Floor().Mul(s.pairValue)
}

// Propagate adds amount to the correct leg of every ancestor of the user.
// An unplaced user propagates nothing.
func (s *VolumeService) Propagate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*model.PropagationReport, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.propagateSlot(ctx, userID, user.UplineID, user.Position, amount)
}

// propagateSlot walks from a slot the user held at a known moment.
func (s *VolumeService) propagateSlot(ctx context.Context, userID uuid.UUID, uplineID *uuid.UUID, position *model.Position, amount decimal.Decimal) (*model.PropagationReport, error) {
	if uplineID == nil {
		return &model.PropagationReport{Stopped: StopRoot}, nil
	}
	if position == nil {
		return &model.PropagationReport{Stopped: StopUnplaced}, nil
	}
	return s.walk(ctx, userID, *uplineID, *position, amount)
}

// PropagateFrom starts the walk at an explicit slot: amount lands on leg of uplineID
// and then travels further up.
func (s *VolumeService) PropagateFrom(ctx context.Context, uplineID uuid.UUID, leg model.Position, amount decimal.Decimal) (*model.PropagationReport, error) {
	if !leg.Valid() {
		return nil, ErrInvalidPosition
	}
	return s.walk(ctx, uuid.Nil, uplineID, leg, amount)
}

func (s *VolumeService) walk(ctx context.Context, origin, uplineID uuid.UUID, leg model.Position, amount decimal.Decimal) (*model.PropagationReport, error) {
	log := logger.Logger()
	report := &model.PropagationReport{}
	guard := newWalkGuard("volume", s.maxHops)
	if origin != uuid.Nil {
		if err := guard.step(origin); err != nil {
			return report, err
		}
	}

	current, side := uplineID, leg
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := guard.step(current); err != nil {
			return report, err
		}

		settled, err := s.repo.ApplyLegVolume(ctx, current, side, amount, s.BinaryEntitlement)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Warn("volume walk stopped at missing upline",
					zap.String("upline_id", current.String()),
					zap.Int("hops", report.Hops),
				)
				report.Stopped = StopMissingUpline
				return report, nil
			}
			return report, fmt.Errorf("failed to apply leg volume: %w", err)
		}
		report.Hops++

		if settled.BonusPaid.IsPositive() {
			report.Bonuses = append(report.Bonuses, model.BonusPayout{UserID: current, Amount: settled.BonusPaid})
			metrics.PayoutsTotal.WithLabelValues(string(model.TxBinary)).Add(settled.BonusPaid.InexactFloat64())
			log.Info("binary bonus paid",
				zap.String("user_id", current.String()),
				zap.String("amount", settled.BonusPaid.String()),
				zap.String("left_volume", settled.Left.String()),
				zap.String("right_volume", settled.Right.String()),
			)
			s.notifier.Publish(Event{
				Kind:    EventBinaryBonusPaid,
				UserID:  current,
				Amount:  settled.BonusPaid,
				Message: "Binary earnings",
				At:      utcNow(),
			})
		}

		if settled.UplineID == nil {
			report.Stopped = StopRoot
			return report, nil
		}
		if settled.Position == nil {
			report.Stopped = StopUnplaced
			return report, nil
		}
		current, side = *settled.UplineID, *settled.Position
	}
}
