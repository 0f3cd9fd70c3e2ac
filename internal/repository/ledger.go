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

type Transaction struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	Type          string          `db:"type"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	Description   string          `db:"description"`
	Level         int             `db:"level"`
	SourceUserID  *uuid.UUID      `db:"source_user_id"`
	CryptoType    string          `db:"crypto_type"`
	WalletAddress string          `db:"wallet_address"`
	TxHash        string          `db:"tx_hash"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (t *Transaction) toModel() *model.Transaction {
	return &model.Transaction{
		ID:            t.ID,
		UserID:        t.UserID,
		Type:          model.TransactionType(t.Type),
		Amount:        t.Amount,
		Status:        model.TransactionStatus(t.Status),
		Description:   t.Description,
		Level:         t.Level,
		SourceUserID:  t.SourceUserID,
		CryptoType:    t.CryptoType,
		WalletAddress: t.WalletAddress,
		TxHash:        t.TxHash,
		CreatedAt:     t.CreatedAt,
	}
}

var transactionColumns = []string{
	"id", "user_id", "type", "amount", "status", "description", "level",
	"source_user_id", "crypto_type", "wallet_address", "tx_hash", "created_at",
}

func (r *Repository) insertTransactionWithTx(ctx context.Context, tx *sqlx.Tx, t *model.Transaction) error {
	query, args, err := squirrel.
		Insert("transactions").
		SetMap(map[string]interface{}{
			"id":             t.ID,
			"user_id":        t.UserID,
			"type":           string(t.Type),
			"amount":         t.Amount,
			"status":         string(t.Status),
			"description":    t.Description,
			"level":          t.Level,
			"source_user_id": t.SourceUserID,
			"crypto_type":    t.CryptoType,
			"wallet_address": t.WalletAddress,
			"tx_hash":        t.TxHash,
			"created_at":     t.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transaction insert query: %w", err)
	}

	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// CreditCommission pays one commission and returns the next ancestor of the receiver.
func (r *Repository) CreditCommission(ctx context.Context, t *model.Transaction) (*uuid.UUID, error) {
	var next *uuid.UUID

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Update("users").
			Set("total_commissions", squirrel.Expr("total_commissions + ?", t.Amount)).
			Set("wallet_balance", squirrel.Expr("wallet_balance + ?", t.Amount)).
			Where(squirrel.Eq{"id": t.UserID}).
			Suffix("RETURNING upline_id").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build commission update query: %w", err)
		}

		err = tx.QueryRowxContext(ctx, query, args...).Scan(&next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to credit commission: %w", err)
		}

		return r.insertTransactionWithTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

// ListTransactions returns the newest entries first. A nil userID lists every user.
func (r *Repository) ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error) {
	builder := squirrel.
		Select(transactionColumns...).
		From("transactions").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)
	if userID != nil {
		builder = builder.Where(squirrel.Eq{"user_id": *userID})
	}
	if txType != nil {
		builder = builder.Where(squirrel.Eq{"type": string(*txType)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []*Transaction
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := make([]*model.Transaction, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}

	return out, nil
}
