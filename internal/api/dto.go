package api

import (
	"time"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserResponse struct {
	ID               uuid.UUID       `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	ReferralCode     string          `json:"referral_code"`
	UplineID         *uuid.UUID      `json:"upline_id"`
	Position         *model.Position `json:"position"`
	LeftChildID      *uuid.UUID      `json:"left_child_id"`
	RightChildID     *uuid.UUID      `json:"right_child_id"`
	LeftVolume       decimal.Decimal `json:"left_volume"`
	RightVolume      decimal.Decimal `json:"right_volume"`
	BinaryEarnings   decimal.Decimal `json:"binary_earnings"`
	TotalCommissions decimal.Decimal `json:"total_commissions"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	WeeklyEarnings   decimal.Decimal `json:"weekly_earnings"`
	Package          *string         `json:"package"`
	CareerLevel      string          `json:"career_level"`
	IsAdmin          bool            `json:"is_admin"`
	CreatedAt        time.Time       `json:"created_at"`
	LastLogin        *time.Time      `json:"last_login"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		ReferralCode:     u.ReferralCode,
		UplineID:         u.UplineID,
		Position:         u.Position,
		LeftChildID:      u.LeftChildID,
		RightChildID:     u.RightChildID,
		LeftVolume:       u.LeftVolume,
		RightVolume:      u.RightVolume,
		BinaryEarnings:   u.BinaryEarnings,
		TotalCommissions: u.TotalCommissions,
		WalletBalance:    u.WalletBalance,
		TotalInvested:    u.TotalInvested,
		WeeklyEarnings:   u.WeeklyEarnings,
		Package:          u.Package,
		CareerLevel:      u.CareerLevel,
		IsAdmin:          u.IsAdmin,
		CreatedAt:        u.CreatedAt,
		LastLogin:        u.LastLogin,
	}
}

type TransactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	UserID        uuid.UUID               `json:"user_id"`
	Type          model.TransactionType   `json:"type"`
	Amount        decimal.Decimal         `json:"amount"`
	Status        model.TransactionStatus `json:"status"`
	Description   string                  `json:"description"`
	Level         int                     `json:"level,omitempty"`
	SourceUserID  *uuid.UUID              `json:"source_user_id,omitempty"`
	CryptoType    string                  `json:"crypto_type,omitempty"`
	WalletAddress string                  `json:"wallet_address,omitempty"`
	TxHash        string                  `json:"tx_hash,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func toTransactionResponses(txs []*model.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = TransactionResponse{
			ID:            t.ID,
			UserID:        t.UserID,
			Type:          t.Type,
			Amount:        t.Amount,
			Status:        t.Status,
			Description:   t.Description,
			Level:         t.Level,
			SourceUserID:  t.SourceUserID,
			CryptoType:    t.CryptoType,
			WalletAddress: t.WalletAddress,
			TxHash:        t.TxHash,
			CreatedAt:     t.CreatedAt,
		}
	}
	return out
}

type InvestmentRequestResponse struct {
	ID        uuid.UUID           `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	FullName  string              `json:"full_name"`
	Username  string              `json:"username"`
	Email     string              `json:"email"`
	Whatsapp  string              `json:"whatsapp"`
	Platform  string              `json:"platform"`
	Package   string              `json:"package"`
	Amount    decimal.Decimal     `json:"amount"`
	Status    model.RequestStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

func toInvestmentRequestResponse(r *model.InvestmentRequest) InvestmentRequestResponse {
	return InvestmentRequestResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		FullName:  r.FullName,
		Username:  r.Username,
		Email:     r.Email,
		Whatsapp:  r.Whatsapp,
		Platform:  r.Platform,
		Package:   r.Package,
		Amount:    r.Amount,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

type InvestmentResponse struct {
	ID            uuid.UUID       `json:"id"`
	Package       string          `json:"package"`
	Amount        decimal.Decimal `json:"amount"`
	InvestedAt    time.Time       `json:"invested_at"`
	LastProfitAt  *time.Time      `json:"last_profit_at"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
}

func toInvestmentResponse(inv *model.Investment) *InvestmentResponse {
	if inv == nil {
		return nil
	}
	return &InvestmentResponse{
		ID:            inv.ID,
		Package:       inv.Package,
		Amount:        inv.Amount,
		InvestedAt:    inv.InvestedAt,
		LastProfitAt:  inv.LastProfitAt,
		TotalEarnings: inv.TotalEarnings,
	}
}

type ReferralCodeResponse struct {
	Code         string    `json:"code"`
	PositionHint string    `json:"position_hint"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toReferralCodeResponse(rc *model.ReferralCode) ReferralCodeResponse {
	return ReferralCodeResponse{
		Code:         rc.Code,
		PositionHint: rc.PositionHint,
		CreatedAt:    rc.CreatedAt,
		ExpiresAt:    rc.ExpiresAt,
	}
}

type PropagationResponse struct {
	Hops    int                 `json:"hops"`
	Bonuses []model.BonusPayout `json:"bonuses"`
	Stopped string              `json:"stopped"`
}

func toPropagationResponse(r *model.PropagationReport) *PropagationResponse {
	if r == nil {
		return nil
	}
	return &PropagationResponse{Hops: r.Hops, Bonuses: r.Bonuses, Stopped: r.Stopped}
}
