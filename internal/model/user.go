package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

func (p Position) Valid() bool {
	return p == PositionLeft || p == PositionRight
}

func (p Position) Opposite() Position {
	if p == PositionLeft {
		return PositionRight
	}
	return PositionLeft
}

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	ReferralCode string

	// UplineID is the sponsor. It is set as soon as a referral code is consumed,
	// Position stays nil until the user is given a tree slot.
	UplineID     *uuid.UUID
	LeftChildID  *uuid.UUID
	RightChildID *uuid.UUID
	Position     *Position

	LeftVolume       decimal.Decimal
	RightVolume      decimal.Decimal
	BinaryEarnings   decimal.Decimal
	TotalCommissions decimal.Decimal
	WalletBalance    decimal.Decimal
	TotalInvested    decimal.Decimal
	WeeklyEarnings   decimal.Decimal

	Package      *string
	CareerLevel  string
	CareerPoints decimal.Decimal
	IsAdmin      bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

func (u *User) IsPlaced() bool {
	return u.UplineID != nil && u.Position != nil
}

// ChildAt returns the occupant of the given slot.
func (u *User) ChildAt(p Position) *uuid.UUID {
	if p == PositionLeft {
		return u.LeftChildID
	}
	return u.RightChildID
}

type UserReferral struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Position      *Position
	TotalInvested decimal.Decimal
	CreatedAt     time.Time
}

type PlatformStats struct {
	TotalUsers         int
	ActiveInvestments  int
	TotalVolume        decimal.Decimal
	PendingWithdrawals int
}
