package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceScale is the fixed-point scale used for every balance and amount.
const BalanceScale = 8

// Wallet is the per-(user, currency) balance pair. The sum of the two
// sub-balances only changes through a ledger mutation paired with a
// Transaction row, and neither sub-balance ever goes negative.
type Wallet struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	Currency         string          `json:"currency"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	EscrowBalance    decimal.Decimal `json:"escrow_balance"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DepositAddress is a lifetime per-(user, network) deposit address derived
// from the vault seed. Immutable once assigned.
type DepositAddress struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Network             string    `json:"network"`
	Address             string    `json:"address"`
	DerivationIndex     uint32    `json:"derivation_index"`
	EncryptedPrivateKey string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
}
