package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deposit statuses
const (
	DepositStatusPending      = "pending"
	DepositStatusConfirming   = "confirming"
	DepositStatusConfirmed    = "confirmed"
	DepositStatusCredited     = "credited"
	DepositStatusSweepPending = "sweep_pending"
	DepositStatusSwept        = "swept"
	DepositStatusSweepFailed  = "sweep_failed"
)

// Valid state transitions: from -> []to
var ValidDepositTransitions = map[string][]string{
	DepositStatusPending:      {DepositStatusConfirming, DepositStatusConfirmed},
	DepositStatusConfirming:   {DepositStatusConfirmed},
	DepositStatusConfirmed:    {DepositStatusCredited},
	DepositStatusCredited:     {DepositStatusSweepPending, DepositStatusSweepFailed},
	DepositStatusSweepPending: {DepositStatusSwept, DepositStatusCredited, DepositStatusSweepFailed},
	DepositStatusSwept:        {},
	DepositStatusSweepFailed:  {},
}

func IsValidDepositTransition(from, to string) bool {
	allowed, ok := ValidDepositTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Deposit is one detected on-chain transfer to a deposit address.
// Immutable except for status/confirmation progression.
type Deposit struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                uuid.UUID       `json:"user_id"`
	TxHash                string          `json:"tx_hash"`
	FromAddress           string          `json:"from_address"`
	ToAddress             string          `json:"to_address"`
	Amount                decimal.Decimal `json:"amount"`
	BlockNumber           uint64          `json:"block_number"`
	Confirmations         uint64          `json:"confirmations"`
	RequiredConfirmations uint64          `json:"required_confirmations"`
	Status                string          `json:"status"`
	ConfirmedAt           *time.Time      `json:"confirmed_at,omitempty"`
	CreditedAt            *time.Time      `json:"credited_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Sweep statuses
const (
	SweepStatusPending = "pending"
	SweepStatusSent    = "sent"
	SweepStatusSwept   = "swept"
	SweepStatusFailed  = "failed"
)

// Sweep tracks consolidation attempts for a single deposit. One row per
// deposit, updated in place on retry.
type Sweep struct {
	ID            uuid.UUID  `json:"id"`
	DepositID     uuid.UUID  `json:"deposit_id"`
	TxHash        *string    `json:"tx_hash,omitempty"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
