// Package ledger holds the pure balance-mutation rules for the two wallet
// sub-balances. Functions here never touch storage; the repositories apply
// the results inside a database transaction together with the matching
// Transaction rows.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/models"
)

var (
	ErrNonPositiveAmount     = errors.New("amount must be positive")
	ErrInsufficientAvailable = errors.New("insufficient available balance")
	ErrInsufficientEscrow    = errors.New("insufficient escrow balance")
	ErrInvalidFeeRate        = errors.New("fee rate must be in [0, 1)")
)

// MarketplaceFeeRate is the platform cut on trade settlement.
var MarketplaceFeeRate = decimal.New(1, -1) // 0.1

// Balances is a wallet's sub-balance pair.
type Balances struct {
	Available decimal.Decimal
	Escrow    decimal.Decimal
}

func FromWallet(w *models.Wallet) Balances {
	return Balances{Available: w.AvailableBalance, Escrow: w.EscrowBalance}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(models.BalanceScale)
}

func checkAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}
	return nil
}

// Hold moves amount from available to escrow. Rejected outright when the
// available balance cannot cover it, never clamped.
func Hold(b Balances, amount decimal.Decimal) (Balances, error) {
	if err := checkAmount(amount); err != nil {
		return b, err
	}
	amount = round(amount)
	if b.Available.LessThan(amount) {
		return b, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAvailable, b.Available, amount)
	}
	return Balances{
		Available: b.Available.Sub(amount),
		Escrow:    b.Escrow.Add(amount),
	}, nil
}

// Release moves amount from escrow back to the same owner's available
// balance (order cancellation before settlement).
func Release(b Balances, amount decimal.Decimal) (Balances, error) {
	if err := checkAmount(amount); err != nil {
		return b, err
	}
	amount = round(amount)
	if b.Escrow.LessThan(amount) {
		return b, fmt.Errorf("%w: have %s, need %s", ErrInsufficientEscrow, b.Escrow, amount)
	}
	return Balances{
		Available: b.Available.Add(amount),
		Escrow:    b.Escrow.Sub(amount),
	}, nil
}

// Refund returns the full escrowed amount to the original holder. Same
// mechanics as Release; kept separate so call sites and Transaction rows
// say what actually happened.
func Refund(b Balances, amount decimal.Decimal) (Balances, error) {
	out, err := Release(b, amount)
	if err != nil {
		return b, err
	}
	return out, nil
}

// Settle releases amount from the holder's escrow to the counterparty's
// available balance, minus the platform fee. The seller receives
// amount*(1-feeRate); the fee is returned for crediting to the platform
// wallet. Seller share is rounded at the balance scale and the fee is the
// exact remainder, so the split always conserves the escrowed amount.
func Settle(holder, seller Balances, amount, feeRate decimal.Decimal) (Balances, Balances, decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return holder, seller, decimal.Zero, err
	}
	if feeRate.Sign() < 0 || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return holder, seller, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidFeeRate, feeRate)
	}
	amount = round(amount)
	if holder.Escrow.LessThan(amount) {
		return holder, seller, decimal.Zero, fmt.Errorf("%w: have %s, need %s", ErrInsufficientEscrow, holder.Escrow, amount)
	}

	sellerShare := round(amount.Mul(decimal.NewFromInt(1).Sub(feeRate)))
	fee := amount.Sub(sellerShare)

	holderOut := Balances{
		Available: holder.Available,
		Escrow:    holder.Escrow.Sub(amount),
	}
	sellerOut := Balances{
		Available: seller.Available.Add(sellerShare),
		Escrow:    seller.Escrow,
	}
	return holderOut, sellerOut, fee, nil
}

// Credit adds amount to the available balance (deposit crediting).
func Credit(b Balances, amount decimal.Decimal) (Balances, error) {
	if err := checkAmount(amount); err != nil {
		return b, err
	}
	return Balances{Available: b.Available.Add(round(amount)), Escrow: b.Escrow}, nil
}

// Debit removes amount from the available balance (withdrawal earmarking,
// amount here already includes the fee).
func Debit(b Balances, amount decimal.Decimal) (Balances, error) {
	if err := checkAmount(amount); err != nil {
		return b, err
	}
	amount = round(amount)
	if b.Available.LessThan(amount) {
		return b, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAvailable, b.Available, amount)
	}
	return Balances{Available: b.Available.Sub(amount), Escrow: b.Escrow}, nil
}
