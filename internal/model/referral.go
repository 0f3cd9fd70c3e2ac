package model

import (
	"time"

	"github.com/google/uuid"
)

const PositionHintAuto = "auto"

type ReferralCode struct {
	ID           uuid.UUID
	Code         string
	UserID       uuid.UUID
	PositionHint string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	IsUsed       bool
	UsedBy       *uuid.UUID
	UsedAt       *time.Time
}

func (c *ReferralCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// HintPosition returns the placement slot suggested by the code, if any.
func (c *ReferralCode) HintPosition() (Position, bool) {
	p := Position(c.PositionHint)
	return p, p.Valid()
}

type ReferralInvalidReason string

const (
	ReferralNotFound    ReferralInvalidReason = "not_found"
	ReferralExpired     ReferralInvalidReason = "expired"
	ReferralAlreadyUsed ReferralInvalidReason = "already_used"
)

type ReferralValidation struct {
	Valid       bool
	Reason      ReferralInvalidReason
	SponsorID   uuid.UUID
	SponsorName string
}

type UsedReferralCode struct {
	Code         string
	CreatedAt    time.Time
	UsedAt       *time.Time
	ReferredID   *uuid.UUID
	ReferredName string
	ReferredMail string
	JoinedAt     *time.Time
}
