package scanner

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/models"
)

func TestDecideCredit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	minDeposit := decimal.RequireFromString("1")

	confirmedAt := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name    string
		deposit models.Deposit
		want    CreditAction
	}{
		{
			name:    "not confirmed yet",
			deposit: models.Deposit{Amount: decimal.RequireFromString("10")},
			want:    CreditWait,
		},
		{
			name: "inside safety delay",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("10"),
				ConfirmedAt: confirmedAt(CreditDelay - time.Second),
			},
			want: CreditWait,
		},
		{
			name: "delay elapsed",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("10"),
				ConfirmedAt: confirmedAt(CreditDelay + time.Second),
			},
			want: CreditApply,
		},
		{
			name: "exactly at delay boundary",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("10"),
				ConfirmedAt: confirmedAt(CreditDelay),
			},
			want: CreditApply,
		},
		{
			name: "below minimum is dust",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("0.99999999"),
				ConfirmedAt: confirmedAt(time.Hour),
			},
			want: CreditDust,
		},
		{
			name: "exactly minimum credits",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("1"),
				ConfirmedAt: confirmedAt(time.Hour),
			},
			want: CreditApply,
		},
		{
			name: "dust still waits out the delay",
			deposit: models.Deposit{
				Amount:      decimal.RequireFromString("0.5"),
				ConfirmedAt: confirmedAt(time.Minute),
			},
			want: CreditWait,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideCredit(&tt.deposit, minDeposit, now)
			if got != tt.want {
				t.Errorf("DecideCredit() = %v, want %v", got, tt.want)
			}
		})
	}
}
