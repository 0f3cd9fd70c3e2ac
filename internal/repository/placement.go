package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"binarynet/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type placementHistory struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	OldUplineID *uuid.UUID `db:"old_upline_id"`
	OldPosition *string    `db:"old_position"`
	NewUplineID uuid.UUID  `db:"new_upline_id"`
	NewPosition string     `db:"new_position"`
	ActorID     uuid.UUID  `db:"actor_id"`
	ActionType  string     `db:"action_type"`
	CreatedAt   time.Time  `db:"created_at"`
}

// PlaceUser commits one placement: the old slot is released, the new slot is taken and
// a history row is written. All touched rows are locked in id order first. It returns
// the user's total_invested as read under that lock.
func (r *Repository) PlaceUser(ctx context.Context, change model.PlacementChange) (decimal.Decimal, error) {
	var invested decimal.Decimal
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		ids := []uuid.UUID{change.UserID, change.NewUplineID}
		if change.OldUplineID != nil && *change.OldUplineID != change.NewUplineID {
			ids = append(ids, *change.OldUplineID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		locked := make(map[uuid.UUID]*model.User, len(ids))
		for _, id := range ids {
			u, err := r.getUserWithTx(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = u
		}

		user := locked[change.UserID]
		if !samePlacement(user, change.OldUplineID, change.OldPosition) {
			return ErrPlacementStale
		}
		invested = user.TotalInvested

		upline := locked[change.NewUplineID]
		if occupant := upline.ChildAt(change.NewPosition); occupant != nil && *occupant != change.UserID {
			return ErrSlotOccupied
		}

		if change.OldUplineID != nil && change.OldPosition != nil &&
			(*change.OldUplineID != change.NewUplineID || *change.OldPosition != change.NewPosition) {
			col := childColumn(*change.OldPosition)
			if err := r.execWithTx(ctx, tx, squirrel.
				Update("users").
				Set(col, nil).
				Where(squirrel.Eq{"id": *change.OldUplineID, col: change.UserID})); err != nil {
				return fmt.Errorf("failed to detach user: %w", err)
			}
		}

		if err := r.execWithTx(ctx, tx, squirrel.
			Update("users").
			Set(childColumn(change.NewPosition), change.UserID).
			Where(squirrel.Eq{"id": change.NewUplineID})); err != nil {
			return fmt.Errorf("failed to attach user: %w", err)
		}

		if err := r.execWithTx(ctx, tx, squirrel.
			Update("users").
			SetMap(map[string]interface{}{
				"upline_id": change.NewUplineID,
				"position":  string(change.NewPosition),
			}).
			Where(squirrel.Eq{"id": change.UserID})); err != nil {
			return fmt.Errorf("failed to update user placement: %w", err)
		}

		h := change.History
		if err := r.execWithTx(ctx, tx, squirrel.
			Insert("placement_history").
			SetMap(map[string]interface{}{
				"id":            h.ID,
				"user_id":       h.UserID,
				"old_upline_id": h.OldUplineID,
				"old_position":  fromPosition(h.OldPosition),
				"new_upline_id": h.NewUplineID,
				"new_position":  string(h.NewPosition),
				"actor_id":      h.ActorID,
				"action_type":   string(h.ActionType),
				"created_at":    h.CreatedAt,
			})); err != nil {
			return fmt.Errorf("failed to insert placement history: %w", err)
		}

		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return invested, nil
}

func samePlacement(u *model.User, uplineID *uuid.UUID, position *model.Position) bool {
	if u.Position == nil || position == nil {
		if u.Position != nil || position != nil {
			return false
		}
		// an unplaced user may carry a sponsor link; only the slot matters here
		return true
	}
	return u.UplineID != nil && uplineID != nil && *u.UplineID == *uplineID && *u.Position == *position
}

func (r *Repository) ListPlacementHistory(ctx context.Context, userID uuid.UUID) ([]*model.PlacementHistory, error) {
	query, args, err := squirrel.
		Select("id", "user_id", "old_upline_id", "old_position", "new_upline_id", "new_position", "actor_id", "action_type", "created_at").
		From("placement_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []*placementHistory
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get placement history: %w", err)
	}

	out := make([]*model.PlacementHistory, len(rows))
	for i, row := range rows {
		out[i] = &model.PlacementHistory{
			ID:          row.ID,
			UserID:      row.UserID,
			OldUplineID: row.OldUplineID,
			OldPosition: toPosition(row.OldPosition),
			NewUplineID: row.NewUplineID,
			NewPosition: model.Position(row.NewPosition),
			ActorID:     row.ActorID,
			ActionType:  model.PlacementAction(row.ActionType),
			CreatedAt:   row.CreatedAt,
		}
	}

	return out, nil
}

func (r *Repository) execWithTx(ctx context.Context, tx *sqlx.Tx, b squirrel.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	query, err = squirrel.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
