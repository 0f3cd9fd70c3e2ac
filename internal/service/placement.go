package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PlaceInput struct {
	ActorID  uuid.UUID
	UserID   uuid.UUID
	UplineID uuid.UUID
	Position model.Position
}

type PlacementService struct {
	repo    PlacementRepository
	volume  *VolumeService
	maxHops int
	now     func() time.Time

	onChange func(ctx context.Context)
}

func NewPlacementService(repo PlacementRepository, volume *VolumeService) *PlacementService {
	return &PlacementService{
		repo:    repo,
		volume:  volume,
		maxHops: volume.maxHops,
		now:     utcNow,

		onChange: func(context.Context) {},
	}
}

// Place puts the user into the given slot under the upline, moving it there when it
// already sits elsewhere. Volume the user invested follows it to the new slot.
func (s *PlacementService) Place(ctx context.Context, in PlaceInput) (*model.PlacementResult, error) {
	if !in.Position.Valid() {
		return nil, ErrInvalidPosition
	}

	user, err := s.getUser(ctx, in.UserID, ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	upline, err := s.getUser(ctx, in.UplineID, ErrUplineNotFound)
	if err != nil {
		return nil, err
	}
	if user.ID == upline.ID {
		return nil, ErrSelfPlacement
	}

	if err := s.authorize(ctx, in.ActorID, user, upline); err != nil {
		return nil, err
	}

	if occupant := upline.ChildAt(in.Position); occupant != nil && *occupant != user.ID {
		return nil, ErrPositionOccupied
	}

	result := &model.PlacementResult{
		UserID:           user.ID,
		UplineID:         upline.ID,
		Position:         in.Position,
		PreviousUplineID: user.UplineID,
		PreviousPosition: user.Position,
		MigratedVolume:   decimal.Zero,
	}

	if user.IsPlaced() {
		result.ActionType = model.ActionRepositioning
		if *user.UplineID == upline.ID && *user.Position == in.Position {
			result.Unchanged = true
			return result, nil
		}
	} else {
		result.ActionType = model.ActionInitialPlacement
		result.PreviousUplineID = nil
	}

	inside, err := s.inSubtree(ctx, user.ID, upline.ID)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, ErrPlacementCycle
	}

	change := model.PlacementChange{
		UserID:      user.ID,
		NewUplineID: upline.ID,
		NewPosition: in.Position,
		History: model.PlacementHistory{
			ID:          uuid.New(),
			UserID:      user.ID,
			NewUplineID: upline.ID,
			NewPosition: in.Position,
			ActorID:     in.ActorID,
			ActionType:  result.ActionType,
			CreatedAt:   s.now(),
		},
	}
	if user.IsPlaced() {
		change.OldUplineID = user.UplineID
		change.OldPosition = user.Position
		change.History.OldUplineID = user.UplineID
		change.History.OldPosition = user.Position
	}

	invested, err := s.repo.PlaceUser(ctx, change)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotOccupied), errors.Is(err, repository.ErrPlacementStale):
			return nil, ErrPositionOccupied
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to place user: %w", err)
	}

	metrics.Placements.WithLabelValues(string(result.ActionType)).Inc()
	logger.Logger().Info("user placed",
		zap.String("user_id", user.ID.String()),
		zap.String("upline_id", upline.ID.String()),
		zap.String("position", string(in.Position)),
		zap.String("action", string(result.ActionType)),
		zap.String("actor_id", in.ActorID.String()),
	)

	if invested.IsPositive() {
		result.MigratedVolume = invested
		s.migrateVolume(ctx, change, invested)
	}
	s.onChange(ctx)

	return result, nil
}

// migrateVolume moves amount off the old ancestor chain and onto the new one. amount is
// the user's total_invested read under the placement lock. The placement is already
// committed, so failures are logged and not returned.
func (s *PlacementService) migrateVolume(ctx context.Context, change model.PlacementChange, amount decimal.Decimal) {
	log := logger.Logger()

	if change.OldUplineID != nil && change.OldPosition != nil {
		_, err := s.volume.PropagateFrom(ctx, *change.OldUplineID, *change.OldPosition, amount.Neg())
		if err != nil {
			log.Error("failed to withdraw volume from previous upline chain",
				zap.String("user_id", change.UserID.String()),
				zap.Error(err),
			)
		}
	}

	_, err := s.volume.PropagateFrom(ctx, change.NewUplineID, change.NewPosition, amount)
	if err != nil {
		log.Error("failed to add volume to new upline chain",
			zap.String("user_id", change.UserID.String()),
			zap.Error(err),
		)
	}
}

// authorize lets admins place anyone. Other actors may only move users who sit below
// them, and only into slots below them.
func (s *PlacementService) authorize(ctx context.Context, actorID uuid.UUID, user, upline *model.User) error {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("failed to get actor: %w", err)
	}
	if actor.IsAdmin {
		return nil
	}
	if actor.ID == user.ID {
		return ErrForbidden
	}

	ownsUser, err := s.inSubtree(ctx, actor.ID, user.ID)
	if err != nil {
		return err
	}
	ownsSlot, err := s.inSubtree(ctx, actor.ID, upline.ID)
	if err != nil {
		return err
	}
	if !ownsUser || !ownsSlot {
		return ErrForbidden
	}
	return nil
}

// inSubtree reports whether node is root or one of root's descendants, following
// upline links from node.
func (s *PlacementService) inSubtree(ctx context.Context, root, node uuid.UUID) (bool, error) {
	guard := newWalkGuard("subtree", s.maxHops)
	current := node
	for {
		if current == root {
			return true, nil
		}
		if err := guard.step(current); err != nil {
			return false, err
		}

		u, err := s.repo.GetUserByID(ctx, current)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("failed to get user: %w", err)
		}
		if u.UplineID == nil {
			return false, nil
		}
		current = *u.UplineID
	}
}

func (s *PlacementService) History(ctx context.Context, userID uuid.UUID) ([]*model.PlacementHistory, error) {
	history, err := s.repo.ListPlacementHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list placement history: %w", err)
	}
	return history, nil
}

func (s *PlacementService) getUser(ctx context.Context, id uuid.UUID, missing error) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, missing
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
