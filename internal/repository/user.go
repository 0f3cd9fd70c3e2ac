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
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var userColumns = []string{
	"id",
	"email",
	"name",
	"password_hash",
	"referral_code",
	"upline_id",
	"left_child_id",
	"right_child_id",
	"position",
	"left_volume",
	"right_volume",
	"binary_earnings",
	"total_commissions",
	"wallet_balance",
	"total_invested",
	"weekly_earnings",
	"package",
	"career_level",
	"career_points",
	"is_admin",
	"created_at",
	"last_login",
}

type User struct {
	ID               uuid.UUID       `db:"id"`
	Email            string          `db:"email"`
	Name             string          `db:"name"`
	PasswordHash     string          `db:"password_hash"`
	ReferralCode     string          `db:"referral_code"`
	UplineID         *uuid.UUID      `db:"upline_id"`
	LeftChildID      *uuid.UUID      `db:"left_child_id"`
	RightChildID     *uuid.UUID      `db:"right_child_id"`
	Position         *string         `db:"position"`
	LeftVolume       decimal.Decimal `db:"left_volume"`
	RightVolume      decimal.Decimal `db:"right_volume"`
	BinaryEarnings   decimal.Decimal `db:"binary_earnings"`
	TotalCommissions decimal.Decimal `db:"total_commissions"`
	WalletBalance    decimal.Decimal `db:"wallet_balance"`
	TotalInvested    decimal.Decimal `db:"total_invested"`
	WeeklyEarnings   decimal.Decimal `db:"weekly_earnings"`
	Package          *string         `db:"package"`
	CareerLevel      string          `db:"career_level"`
	CareerPoints     decimal.Decimal `db:"career_points"`
	IsAdmin          bool            `db:"is_admin"`
	CreatedAt        time.Time       `db:"created_at"`
	LastLogin        *time.Time      `db:"last_login"`
}

func (u *User) toModel() *model.User {
	return &model.User{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		PasswordHash:     u.PasswordHash,
		ReferralCode:     u.ReferralCode,
		UplineID:         u.UplineID,
		LeftChildID:      u.LeftChildID,
		RightChildID:     u.RightChildID,
		Position:         toPosition(u.Position),
		LeftVolume:       u.LeftVolume,
		RightVolume:      u.RightVolume,
		BinaryEarnings:   u.BinaryEarnings,
		TotalCommissions: u.TotalCommissions,
		WalletBalance:    u.WalletBalance,
		TotalInvested:    u.TotalInvested,
		WeeklyEarnings:   u.WeeklyEarnings,
		Package:          u.Package,
		CareerLevel:      u.CareerLevel,
		CareerPoints:     u.CareerPoints,
		IsAdmin:          u.IsAdmin,
		CreatedAt:        u.CreatedAt,
		LastLogin:        u.LastLogin,
	}
}

type userReferral struct {
	ID            uuid.UUID       `db:"id"`
	Name          string          `db:"name"`
	Email         string          `db:"email"`
	Position      *string         `db:"position"`
	TotalInvested decimal.Decimal `db:"total_invested"`
	CreatedAt     time.Time       `db:"created_at"`
}

func toPosition(s *string) *model.Position {
	if s == nil {
		return nil
	}
	p := model.Position(*s)
	return &p
}

func fromPosition(p *model.Position) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func childColumn(p model.Position) string {
	if p == model.PositionLeft {
		return "left_child_id"
	}
	return "right_child_id"
}

func volumeColumn(p model.Position) string {
	if p == model.PositionLeft {
		return "left_volume"
	}
	return "right_volume"
}

// CreateUser inserts the user. When referralCode is set the code is consumed in the
// same transaction and its issuer becomes the user's upline.
func (r *Repository) CreateUser(ctx context.Context, user *model.User, referralCode string, now time.Time) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if referralCode != "" {
			sponsorID, err := r.consumeReferralCodeWithTx(ctx, tx, referralCode, user.ID, now)
			if err != nil {
				return err
			}
			user.UplineID = &sponsorID
		}

		query, args, err := squirrel.
			Insert("users").
			SetMap(map[string]interface{}{
				"id":            user.ID,
				"email":         user.Email,
				"name":          user.Name,
				"password_hash": user.PasswordHash,
				"referral_code": user.ReferralCode,
				"upline_id":     user.UplineID,
				"career_level":  user.CareerLevel,
				"is_admin":      user.IsAdmin,
				"created_at":    user.CreatedAt,
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build user insert query: %w", err)
		}

		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		return nil
	})
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getUser(ctx, r.db, squirrel.Eq{"id": id}, false)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, r.db, squirrel.Expr("lower(email) = lower(?)", email), false)
}

func (r *Repository) getUserWithTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.User, error) {
	return r.getUser(ctx, tx, squirrel.Eq{"id": id}, true)
}

func (r *Repository) getUser(ctx context.Context, q sqlx.QueryerContext, where squirrel.Sqlizer, forUpdate bool) (*model.User, error) {
	builder := squirrel.
		Select(userColumns...).
		From("users").
		Where(where).
		PlaceholderFormat(squirrel.Dollar)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var user User
	err = sqlx.GetContext(ctx, q, &user, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return user.toModel(), nil
}

// GetUsersByIDs loads a batch of users; missing ids are silently absent from the result.
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query, args, err := squirrel.
		Select(userColumns...).
		From("users").
		Where("id = ANY(?::uuid[])", pq.Array(raw)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []User
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	users := make([]*model.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toModel()
	}

	return users, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args, err := squirrel.
		Update("users").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// JoinNetwork consumes a referral code on behalf of an existing user without an upline.
func (r *Repository) JoinNetwork(ctx context.Context, userID uuid.UUID, code string, now time.Time) (uuid.UUID, error) {
	var sponsorID uuid.UUID

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		user, err := r.getUserWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.UplineID != nil {
			return ErrAlreadyLinked
		}

		sponsorID, err = r.consumeReferralCodeWithTx(ctx, tx, code, userID, now)
		if err != nil {
			return err
		}

		query, args, err := squirrel.
			Update("users").
			Set("upline_id", sponsorID).
			Where(squirrel.Eq{"id": userID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	return sponsorID, nil
}

func (r *Repository) ListDirectReferrals(ctx context.Context, sponsorID uuid.UUID) ([]*model.UserReferral, error) {
	query, args, err := squirrel.
		Select("id", "name", "email", "position", "total_invested", "created_at").
		From("users").
		Where(squirrel.Eq{"upline_id": sponsorID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var referrals []*userReferral
	err = r.db.SelectContext(ctx, &referrals, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user referrals: %w", err)
	}

	refs := make([]*model.UserReferral, len(referrals))
	for i, ref := range referrals {
		refs[i] = &model.UserReferral{
			ID:            ref.ID,
			Name:          ref.Name,
			Email:         ref.Email,
			Position:      toPosition(ref.Position),
			TotalInvested: ref.TotalInvested,
			CreatedAt:     ref.CreatedAt,
		}
	}

	return refs, nil
}

func (r *Repository) ListUsers(ctx context.Context, limit int) ([]*model.User, error) {
	query, args, err := squirrel.
		Select(userColumns...).
		From("users").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []User
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	users := make([]*model.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toModel()
	}

	return users, nil
}

func (r *Repository) SetAdmin(ctx context.Context, id uuid.UUID) error {
	query, args, err := squirrel.
		Update("users").
		Set("is_admin", true).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) UpdateCareer(ctx context.Context, id uuid.UUID, level string, points decimal.Decimal) error {
	query, args, err := squirrel.
		Update("users").
		SetMap(map[string]interface{}{
			"career_level":  level,
			"career_points": points,
		}).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// PurgeUser removes a user with everything that belongs to it. Users it sponsored become
// unplaced roots and any tree slot pointing at it is cleared.
func (r *Repository) PurgeUser(ctx context.Context, id uuid.UUID) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		user, err := r.getUserWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.IsAdmin {
			return ErrProtectedUser
		}

		updates := []squirrel.UpdateBuilder{
			squirrel.Update("users").Set("left_child_id", nil).Where(squirrel.Eq{"left_child_id": id}),
			squirrel.Update("users").Set("right_child_id", nil).Where(squirrel.Eq{"right_child_id": id}),
			squirrel.Update("users").
				SetMap(map[string]interface{}{"upline_id": nil, "position": nil}).
				Where(squirrel.Eq{"upline_id": id}),
		}
		for _, b := range updates {
			query, args, err := b.PlaceholderFormat(squirrel.Dollar).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to detach user links: %w", err)
			}
		}

		for _, table := range []string{"referral_codes", "transactions", "investments", "investment_requests", "placement_history"} {
			query, args, err := squirrel.
				Delete(table).
				Where(squirrel.Eq{"user_id": id}).
				PlaceholderFormat(squirrel.Dollar).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to purge %s: %w", table, err)
			}
		}

		query, args, err := squirrel.
			Delete("users").
			Where(squirrel.Eq{"id": id}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (r *Repository) GetStats(ctx context.Context) (*model.PlatformStats, error) {
	var stats struct {
		TotalUsers         int             `db:"total_users"`
		ActiveInvestments  int             `db:"active_investments"`
		TotalVolume        decimal.Decimal `db:"total_volume"`
		PendingWithdrawals int             `db:"pending_withdrawals"`
	}

	query, args, err := squirrel.
		Select(
			"(SELECT COUNT(*) FROM users) AS total_users",
			"(SELECT COUNT(*) FROM investments WHERE is_active) AS active_investments",
			"(SELECT COALESCE(SUM(total_invested), 0) FROM users) AS total_volume",
			"(SELECT COUNT(*) FROM transactions WHERE type = 'withdrawal' AND status = 'pending') AS pending_withdrawals",
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &stats, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return &model.PlatformStats{
		TotalUsers:         stats.TotalUsers,
		ActiveInvestments:  stats.ActiveInvestments,
		TotalVolume:        stats.TotalVolume,
		PendingWithdrawals: stats.PendingWithdrawals,
	}, nil
}
