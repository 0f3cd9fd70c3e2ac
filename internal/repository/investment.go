package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"binarynet/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type InvestmentRequest struct {
	ID        uuid.UUID       `db:"id"`
	UserID    uuid.UUID       `db:"user_id"`
	FullName  string          `db:"full_name"`
	Username  string          `db:"username"`
	Email     string          `db:"email"`
	Whatsapp  string          `db:"whatsapp"`
	Platform  string          `db:"platform"`
	Package   string          `db:"package"`
	Amount    decimal.Decimal `db:"amount"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
}

func (i *InvestmentRequest) toModel() *model.InvestmentRequest {
	return &model.InvestmentRequest{
		ID:        i.ID,
		UserID:    i.UserID,
		FullName:  i.FullName,
		Username:  i.Username,
		Email:     i.Email,
		Whatsapp:  i.Whatsapp,
		Platform:  i.Platform,
		Package:   i.Package,
		Amount:    i.Amount,
		Status:    model.RequestStatus(i.Status),
		CreatedAt: i.CreatedAt,
	}
}

type Investment struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	RequestID     *uuid.UUID      `db:"request_id"`
	Package       string          `db:"package"`
	Amount        decimal.Decimal `db:"amount"`
	InvestedAt    time.Time       `db:"invested_at"`
	LastProfitAt  *time.Time      `db:"last_profit_at"`
	TotalEarnings decimal.Decimal `db:"total_earnings"`
	IsActive      bool            `db:"is_active"`
}

func (i *Investment) toModel() *model.Investment {
	return &model.Investment{
		ID:            i.ID,
		UserID:        i.UserID,
		RequestID:     i.RequestID,
		Package:       i.Package,
		Amount:        i.Amount,
		InvestedAt:    i.InvestedAt,
		LastProfitAt:  i.LastProfitAt,
		TotalEarnings: i.TotalEarnings,
		IsActive:      i.IsActive,
	}
}

var (
	investmentRequestColumns = []string{
		"id", "user_id", "full_name", "username", "email", "whatsapp", "platform", "package", "amount", "status", "created_at",
	}
	investmentColumns = []string{
		"id", "user_id", "request_id", "package", "amount", "invested_at", "last_profit_at", "total_earnings", "is_active",
	}
)

func (r *Repository) CreateInvestmentRequest(ctx context.Context, req *model.InvestmentRequest) error {
	query, args, err := squirrel.
		Insert("investment_requests").
		SetMap(map[string]interface{}{
			"id":         req.ID,
			"user_id":    req.UserID,
			"full_name":  req.FullName,
			"username":   req.Username,
			"email":      req.Email,
			"whatsapp":   req.Whatsapp,
			"platform":   req.Platform,
			"package":    req.Package,
			"amount":     req.Amount,
			"status":     string(req.Status),
			"created_at": req.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build investment request insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert investment request: %w", err)
	}

	return nil
}

func (r *Repository) ListInvestmentRequests(ctx context.Context, userID *uuid.UUID, limit int) ([]*model.InvestmentRequest, error) {
	builder := squirrel.
		Select(investmentRequestColumns...).
		From("investment_requests").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)
	if userID != nil {
		builder = builder.Where(squirrel.Eq{"user_id": *userID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []*InvestmentRequest
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list investment requests: %w", err)
	}

	out := make([]*model.InvestmentRequest, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}

	return out, nil
}

// ApproveInvestmentRequest moves a pending request to approved and books the investment:
// investment row, total_invested, package and deposit ledger entry, all in one transaction.
type investorSlot struct {
	UplineID *uuid.UUID `db:"upline_id"`
	Position *string    `db:"position"`
}

// ApproveInvestmentRequest books the investment and raises the investor's total_invested.
// The investor row stays locked until commit, so the returned slot cannot race a placement.
func (r *Repository) ApproveInvestmentRequest(ctx context.Context, id uuid.UUID, now time.Time) (*model.Approval, error) {
	var (
		req  *model.InvestmentRequest
		inv  *model.Investment
		slot investorSlot
	)

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = r.transitionRequestWithTx(ctx, tx, id, model.RequestApproved)
		if err != nil {
			return err
		}

		inv = &model.Investment{
			ID:            uuid.New(),
			UserID:        req.UserID,
			RequestID:     &req.ID,
			Package:       req.Package,
			Amount:        req.Amount,
			InvestedAt:    now,
			TotalEarnings: decimal.Zero,
			IsActive:      true,
		}

		err = r.execWithTx(ctx, tx, squirrel.
			Insert("investments").
			SetMap(map[string]interface{}{
				"id":             inv.ID,
				"user_id":        inv.UserID,
				"request_id":     inv.RequestID,
				"package":        inv.Package,
				"amount":         inv.Amount,
				"invested_at":    inv.InvestedAt,
				"total_earnings": inv.TotalEarnings,
				"is_active":      true,
			}))
		if err != nil {
			return fmt.Errorf("failed to insert investment: %w", err)
		}

		err = tx.QueryRowxContext(ctx,
			`UPDATE users SET total_invested = total_invested + $1, package = $2 WHERE id = $3 RETURNING upline_id, position`,
			req.Amount, req.Package, req.UserID).StructScan(&slot)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update investor: %w", err)
		}

		return r.insertTransactionWithTx(ctx, tx, &model.Transaction{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Type:        model.TxDeposit,
			Amount:      req.Amount,
			Status:      model.TxCompleted,
			Description: fmt.Sprintf("%s package purchase", strings.ToUpper(req.Package)),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	return &model.Approval{
		Request:    req,
		Investment: inv,
		UplineID:   slot.UplineID,
		Position:   toPosition(slot.Position),
	}, nil
}

func (r *Repository) RejectInvestmentRequest(ctx context.Context, id uuid.UUID) (*model.InvestmentRequest, error) {
	var req *model.InvestmentRequest
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = r.transitionRequestWithTx(ctx, tx, id, model.RequestRejected)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Repository) transitionRequestWithTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.RequestStatus) (*model.InvestmentRequest, error) {
	query, args, err := squirrel.
		Update("investment_requests").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": id, "status": string(model.RequestPending)}).
		Suffix("RETURNING " + strings.Join(investmentRequestColumns, ", ")).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row InvestmentRequest
	err = tx.QueryRowxContext(ctx, query, args...).StructScan(&row)
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update investment request: %w", err)
	}

	var exists bool
	err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM investment_requests WHERE id = $1)`, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrAlreadyProcessed
}

// GetActiveInvestment returns the most recent active investment of the user.
func (r *Repository) GetActiveInvestment(ctx context.Context, userID uuid.UUID) (*model.Investment, error) {
	query, args, err := squirrel.
		Select(investmentColumns...).
		From("investments").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("invested_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var inv Investment
	err = r.db.GetContext(ctx, &inv, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return inv.toModel(), nil
}

func (r *Repository) ListActiveInvestments(ctx context.Context) ([]*model.Investment, error) {
	query, args, err := squirrel.
		Select(investmentColumns...).
		From("investments").
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("invested_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []*Investment
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}

	out := make([]*model.Investment, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}

	return out, nil
}

// CreditWeeklyProfit pays one profit period for the investment. It returns false without
// paying when the investment was already paid after notBefore.
func (r *Repository) CreditWeeklyProfit(ctx context.Context, inv *model.Investment, t *model.Transaction, notBefore time.Time) (bool, error) {
	paid := false

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Update("investments").
			Set("last_profit_at", t.CreatedAt).
			Set("total_earnings", squirrel.Expr("total_earnings + ?", t.Amount)).
			Where(squirrel.Eq{"id": inv.ID, "is_active": true}).
			Where(squirrel.Or{
				squirrel.Eq{"last_profit_at": nil},
				squirrel.LtOrEq{"last_profit_at": notBefore},
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update investment: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}

		err = r.execWithTx(ctx, tx, squirrel.
			Update("users").
			Set("weekly_earnings", squirrel.Expr("weekly_earnings + ?", t.Amount)).
			Set("wallet_balance", squirrel.Expr("wallet_balance + ?", t.Amount)).
			Where(squirrel.Eq{"id": inv.UserID}))
		if err != nil {
			return fmt.Errorf("failed to credit weekly profit: %w", err)
		}

		if err := r.insertTransactionWithTx(ctx, tx, t); err != nil {
			return err
		}

		paid = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return paid, nil
}
