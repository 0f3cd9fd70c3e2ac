package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxCommission   TransactionType = "commission"
	TxBinary       TransactionType = "binary"
	TxDeposit      TransactionType = "deposit"
	TxWithdrawal   TransactionType = "withdrawal"
	TxWeeklyProfit TransactionType = "weekly_profit"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxRejected  TransactionStatus = "rejected"
)

type Transaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	Status        TransactionStatus
	Description   string
	Level         int
	SourceUserID  *uuid.UUID
	CryptoType    string
	WalletAddress string
	TxHash        string
	CreatedAt     time.Time
}
