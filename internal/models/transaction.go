package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TxTypeDeposit       = "deposit"
	TxTypeWithdraw      = "withdraw"
	TxTypeEscrowHold    = "escrow_hold"
	TxTypeEscrowRelease = "escrow_release"
	TxTypeRefund        = "refund"
	TxTypeFee           = "fee"
)

// Transaction is an immutable ledger entry. Every balance mutation writes
// exactly one row (fee splits write two) in the same database transaction
// as the mutation itself.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	RelatedOrderID *uuid.UUID      `json:"related_order_id,omitempty"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
}
