package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventInvestmentRequested EventKind = "investment_requested"
	EventInvestmentApproved  EventKind = "investment_approved"
	EventWithdrawalRequested EventKind = "withdrawal_requested"
	EventWithdrawalSettled   EventKind = "withdrawal_settled"
	EventCommissionPaid      EventKind = "commission_paid"
	EventBinaryBonusPaid     EventKind = "binary_bonus_paid"
	EventWeeklyProfitPaid    EventKind = "weekly_profit_paid"
)

type Event struct {
	Kind    EventKind       `json:"kind"`
	UserID  uuid.UUID       `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
	At      time.Time       `json:"at"`
}

// Notifier delivers events fire-and-forget. Publish must never block the caller.
type Notifier interface {
	Publish(e Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
