package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Withdrawal statuses
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusApproved   = "approved"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusSent       = "sent"
	WithdrawalStatusFailed     = "failed"
	WithdrawalStatusRejected   = "rejected"
)

// Valid state transitions: from -> []to.
// failed keeps the funds earmarked until an operator resolves the outcome;
// the admin reject path refunds them, so failed -> rejected must stay open.
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusPending:    {WithdrawalStatusApproved, WithdrawalStatusRejected},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing, WithdrawalStatusRejected},
	WithdrawalStatusProcessing: {WithdrawalStatusSent, WithdrawalStatusFailed},
	WithdrawalStatusSent:       {},
	WithdrawalStatusFailed:     {WithdrawalStatusRejected},
	WithdrawalStatusRejected:   {},
}

func IsValidWithdrawalTransition(from, to string) bool {
	allowed, ok := ValidWithdrawalTransitions[from]
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

// WithdrawalRequest is one user withdrawal. Amount is the net amount the
// destination receives; the fee is recorded separately. available_balance
// is decremented by amount+fee the moment the request is accepted.
type WithdrawalRequest struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	WalletAddress string          `json:"wallet_address"`
	Status        string          `json:"status"`
	TxHash        *string         `json:"tx_hash,omitempty"`
	DelayUntil    *time.Time      `json:"delay_until,omitempty"`
	DelayReason   *string         `json:"delay_reason,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
