package scanner

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/models"
)

// CreditAction says what to do with a confirmed deposit.
type CreditAction int

const (
	// CreditWait means the safety delay has not elapsed yet.
	CreditWait CreditAction = iota
	// CreditDust means the deposit is below the minimum and is marked
	// credited without a balance change.
	CreditDust
	// CreditApply means the wallet balance is increased.
	CreditApply
)

// CreditDelay is how long a confirmed deposit sits before the balance is
// credited. Gives operators a window to freeze a suspicious deposit.
const CreditDelay = 5 * time.Minute

// DecideCredit classifies a confirmed deposit at time now. Pure so it can
// be tested without a database.
func DecideCredit(d *models.Deposit, minDeposit decimal.Decimal, now time.Time) CreditAction {
	if d.ConfirmedAt == nil || now.Before(d.ConfirmedAt.Add(CreditDelay)) {
		return CreditWait
	}
	if d.Amount.LessThan(minDeposit) {
		return CreditDust
	}
	return CreditApply
}
