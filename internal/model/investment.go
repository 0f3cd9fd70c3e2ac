package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type InvestmentRequest struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	FullName  string
	Username  string
	Email     string
	Whatsapp  string
	Platform  string
	Package   string
	Amount    decimal.Decimal
	Status    RequestStatus
	CreatedAt time.Time
}

type Investment struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	RequestID     *uuid.UUID
	Package       string
	Amount        decimal.Decimal
	InvestedAt    time.Time
	LastProfitAt  *time.Time
	TotalEarnings decimal.Decimal
	IsActive      bool
}

// Approval is a committed investment approval. UplineID and Position are the investor's
// slot as it was inside the approving transaction.
type Approval struct {
	Request    *InvestmentRequest
	Investment *Investment
	UplineID   *uuid.UUID
	Position   *Position
}

type ApprovalReport struct {
	Investment  *Investment
	Commissions *CommissionReport
	Propagation *PropagationReport
}

type WeeklyProfitReport struct {
	DistributedTo int
	Skipped       int
	TotalAmount   decimal.Decimal
}
