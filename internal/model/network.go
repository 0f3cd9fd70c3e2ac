package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LegVolumes is the settlement view of a node handed to the bonus calculation.
type LegVolumes struct {
	UserID         uuid.UUID
	Left           decimal.Decimal
	Right          decimal.Decimal
	BinaryEarnings decimal.Decimal
}

// VolumeSettlement is the outcome of adding volume to one leg of one node.
type VolumeSettlement struct {
	UserID         uuid.UUID
	UplineID       *uuid.UUID
	Position       *Position
	Left           decimal.Decimal
	Right          decimal.Decimal
	BinaryEarnings decimal.Decimal
	BonusPaid      decimal.Decimal
}

type BonusPayout struct {
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type PropagationReport struct {
	Hops    int
	Bonuses []BonusPayout
	Stopped string
}

type CommissionPayout struct {
	UserID uuid.UUID       `json:"user_id"`
	Level  int             `json:"level"`
	Amount decimal.Decimal `json:"amount"`
}

type CommissionReport struct {
	Rate    decimal.Decimal
	Payouts []CommissionPayout
	Stopped string
}

func (r *CommissionReport) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Payouts {
		total = total.Add(p.Amount)
	}
	return total
}

type TreeNode struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Package       *string         `json:"package"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	LeftVolume    decimal.Decimal `json:"left_volume"`
	RightVolume   decimal.Decimal `json:"right_volume"`
	Left          *TreeNode       `json:"left"`
	Right         *TreeNode       `json:"right"`
}

type ChildSummary struct {
	ID      uuid.UUID
	Name    string
	Package *string
}

type Dashboard struct {
	User               *User
	ActiveReferralCode string
	Referrals          []*UserReferral
	Investment         *Investment
	Transactions       []*Transaction
	Left               *ChildSummary
	Right              *ChildSummary
	Career             CareerProgress
}

// SettleFunc returns the binary earnings a node is entitled to for its current leg volumes.
type SettleFunc func(v LegVolumes) decimal.Decimal
