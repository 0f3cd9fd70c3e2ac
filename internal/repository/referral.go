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
)

type ReferralCode struct {
	ID           uuid.UUID  `db:"id"`
	Code         string     `db:"code"`
	UserID       uuid.UUID  `db:"user_id"`
	PositionHint string     `db:"position_hint"`
	CreatedAt    time.Time  `db:"created_at"`
	ExpiresAt    time.Time  `db:"expires_at"`
	IsUsed       bool       `db:"is_used"`
	UsedBy       *uuid.UUID `db:"used_by"`
	UsedAt       *time.Time `db:"used_at"`
}

func (c *ReferralCode) toModel() *model.ReferralCode {
	return &model.ReferralCode{
		ID:           c.ID,
		Code:         c.Code,
		UserID:       c.UserID,
		PositionHint: c.PositionHint,
		CreatedAt:    c.CreatedAt,
		ExpiresAt:    c.ExpiresAt,
		IsUsed:       c.IsUsed,
		UsedBy:       c.UsedBy,
		UsedAt:       c.UsedAt,
	}
}

type usedReferralCode struct {
	Code         string     `db:"code"`
	CreatedAt    time.Time  `db:"created_at"`
	UsedAt       *time.Time `db:"used_at"`
	ReferredID   *uuid.UUID `db:"referred_id"`
	ReferredName *string    `db:"referred_name"`
	ReferredMail *string    `db:"referred_email"`
	JoinedAt     *time.Time `db:"joined_at"`
}

var referralColumns = []string{
	"id", "code", "user_id", "position_hint", "created_at", "expires_at", "is_used", "used_by", "used_at",
}

func (r *Repository) CreateReferralCode(ctx context.Context, code *model.ReferralCode) error {
	query, args, err := squirrel.
		Insert("referral_codes").
		SetMap(map[string]interface{}{
			"id":            code.ID,
			"code":          code.Code,
			"user_id":       code.UserID,
			"position_hint": code.PositionHint,
			"created_at":    code.CreatedAt,
			"expires_at":    code.ExpiresAt,
			"is_used":       false,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referral code insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeUnavailable
		}
		return fmt.Errorf("failed to insert referral code: %w", err)
	}

	return nil
}

// GetReferralCode matches the code case-insensitively.
func (r *Repository) GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	query, args, err := squirrel.
		Select(referralColumns...).
		From("referral_codes").
		Where("lower(code) = lower(?)", code).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rc ReferralCode
	err = r.db.GetContext(ctx, &rc, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return rc.toModel(), nil
}

// GetActiveReferralCode returns the newest unused, unexpired code of the sponsor.
func (r *Repository) GetActiveReferralCode(ctx context.Context, sponsorID uuid.UUID, now time.Time) (*model.ReferralCode, error) {
	query, args, err := squirrel.
		Select(referralColumns...).
		From("referral_codes").
		Where(squirrel.Eq{"user_id": sponsorID, "is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("expires_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rc ReferralCode
	err = r.db.GetContext(ctx, &rc, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return rc.toModel(), nil
}

func (r *Repository) ConsumeReferralCode(ctx context.Context, code string, consumerID uuid.UUID, now time.Time) (uuid.UUID, error) {
	var sponsorID uuid.UUID
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		sponsorID, err = r.consumeReferralCodeWithTx(ctx, tx, code, consumerID, now)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return sponsorID, nil
}

// consumeReferralCodeWithTx flips is_used with a single conditional update, so only one
// of any number of concurrent consumers gets a row back.
func (r *Repository) consumeReferralCodeWithTx(ctx context.Context, tx *sqlx.Tx, code string, consumerID uuid.UUID, now time.Time) (uuid.UUID, error) {
	query, args, err := squirrel.
		Update("referral_codes").
		SetMap(map[string]interface{}{
			"is_used": true,
			"used_by": consumerID,
			"used_at": now,
		}).
		Where("lower(code) = lower(?)", code).
		Where(squirrel.Eq{"is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		Suffix("RETURNING user_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build referral consume query: %w", err)
	}

	var sponsorID uuid.UUID
	err = tx.QueryRowxContext(ctx, query, args...).Scan(&sponsorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrCodeUnavailable
		}
		return uuid.Nil, fmt.Errorf("failed to consume referral code: %w", err)
	}

	return sponsorID, nil
}

func (r *Repository) ListUsedReferralCodes(ctx context.Context, sponsorID uuid.UUID) ([]*model.UsedReferralCode, error) {
	query, args, err := squirrel.
		Select(
			"rc.code",
			"rc.created_at",
			"rc.used_at",
			"u.id AS referred_id",
			"u.name AS referred_name",
			"u.email AS referred_email",
			"u.created_at AS joined_at",
		).
		From("referral_codes rc").
		LeftJoin("users u ON u.id = rc.used_by").
		Where(squirrel.Eq{"rc.user_id": sponsorID, "rc.is_used": true}).
		OrderBy("rc.used_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []*usedReferralCode
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get used referral codes: %w", err)
	}

	codes := make([]*model.UsedReferralCode, len(rows))
	for i, row := range rows {
		codes[i] = &model.UsedReferralCode{
			Code:       row.Code,
			CreatedAt:  row.CreatedAt,
			UsedAt:     row.UsedAt,
			ReferredID: row.ReferredID,
			JoinedAt:   row.JoinedAt,
		}
		if row.ReferredName != nil {
			codes[i].ReferredName = *row.ReferredName
		}
		if row.ReferredMail != nil {
			codes[i].ReferredMail = *row.ReferredMail
		}
	}

	return codes, nil
}
