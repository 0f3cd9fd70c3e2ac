package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"binarynet/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type legVolumes struct {
	ID             uuid.UUID       `db:"id"`
	UplineID       *uuid.UUID      `db:"upline_id"`
	Position       *string         `db:"position"`
	LeftVolume     decimal.Decimal `db:"left_volume"`
	RightVolume    decimal.Decimal `db:"right_volume"`
	BinaryEarnings decimal.Decimal `db:"binary_earnings"`
}

// ApplyLegVolume adds amount to one leg of the node and settles its binary bonus in the
// same transaction. The increment takes the row lock, so the earnings comparison below
// cannot race another deposit into the same node.
func (r *Repository) ApplyLegVolume(ctx context.Context, nodeID uuid.UUID, leg model.Position, amount decimal.Decimal, settle model.SettleFunc) (*model.VolumeSettlement, error) {
	var out *model.VolumeSettlement

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		col := volumeColumn(leg)
		query, args, err := squirrel.
			Update("users").
			Set(col, squirrel.Expr(col+" + ?", amount)).
			Where(squirrel.Eq{"id": nodeID}).
			Suffix("RETURNING id, upline_id, position, left_volume, right_volume, binary_earnings").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build volume update query: %w", err)
		}

		var row legVolumes
		err = tx.QueryRowxContext(ctx, query, args...).StructScan(&row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update leg volume: %w", err)
		}

		out = &model.VolumeSettlement{
			UserID:         row.ID,
			UplineID:       row.UplineID,
			Position:       toPosition(row.Position),
			Left:           row.LeftVolume,
			Right:          row.RightVolume,
			BinaryEarnings: row.BinaryEarnings,
			BonusPaid:      decimal.Zero,
		}

		candidate := settle(model.LegVolumes{
			UserID:         row.ID,
			Left:           row.LeftVolume,
			Right:          row.RightVolume,
			BinaryEarnings: row.BinaryEarnings,
		})
		if !candidate.GreaterThan(row.BinaryEarnings) {
			return nil
		}

		delta := candidate.Sub(row.BinaryEarnings)
		err = r.execWithTx(ctx, tx, squirrel.
			Update("users").
			Set("binary_earnings", candidate).
			Set("wallet_balance", squirrel.Expr("wallet_balance + ?", delta)).
			Where(squirrel.Eq{"id": nodeID}))
		if err != nil {
			return fmt.Errorf("failed to credit binary bonus: %w", err)
		}

		err = r.insertTransactionWithTx(ctx, tx, &model.Transaction{
			ID:          uuid.New(),
			UserID:      nodeID,
			Type:        model.TxBinary,
			Amount:      delta,
			Status:      model.TxCompleted,
			Description: "Binary earnings",
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		out.BinaryEarnings = candidate
		out.BonusPaid = delta
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
