package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"binarynet/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateWithdrawal debits the wallet and records the pending withdrawal. The debit only
// succeeds while the balance covers the amount.
func (r *Repository) CreateWithdrawal(ctx context.Context, t *model.Transaction) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Update("users").
			Set("wallet_balance", squirrel.Expr("wallet_balance - ?", t.Amount)).
			Where(squirrel.Eq{"id": t.UserID}).
			Where(squirrel.GtOrEq{"wallet_balance": t.Amount}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build wallet debit query: %w", err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			if _, err := r.getUserWithTx(ctx, tx, t.UserID); err != nil {
				return err
			}
			return ErrInsufficientFunds
		}

		return r.insertTransactionWithTx(ctx, tx, t)
	})
}

// SettleWithdrawal moves a pending withdrawal to completed or rejected. A rejection
// credits the reserved amount back to the wallet.
func (r *Repository) SettleWithdrawal(ctx context.Context, id uuid.UUID, status model.TransactionStatus, txHash string) (*model.Transaction, error) {
	var out *model.Transaction

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		set := map[string]interface{}{"status": string(status)}
		if txHash != "" {
			set["tx_hash"] = txHash
		}

		query, args, err := squirrel.
			Update("transactions").
			SetMap(set).
			Where(squirrel.Eq{
				"id":     id,
				"type":   string(model.TxWithdrawal),
				"status": string(model.TxPending),
			}).
			Suffix("RETURNING " + strings.Join(transactionColumns, ", ")).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var row Transaction
		err = tx.QueryRowxContext(ctx, query, args...).StructScan(&row)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to settle withdrawal: %w", err)
			}
			var exists bool
			err = tx.GetContext(ctx, &exists,
				`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1 AND type = 'withdrawal')`, id)
			if err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrAlreadyProcessed
		}
		out = row.toModel()

		if status == model.TxRejected {
			err = r.execWithTx(ctx, tx, squirrel.
				Update("users").
				Set("wallet_balance", squirrel.Expr("wallet_balance + ?", row.Amount)).
				Where(squirrel.Eq{"id": row.UserID}))
			if err != nil {
				return fmt.Errorf("failed to refund withdrawal: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
