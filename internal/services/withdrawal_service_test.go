package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/models"
)

func controlsFixture() *models.WalletControls {
	return &models.WalletControls{
		WithdrawalFeePercent:        decimal.RequireFromString("1"),
		WithdrawalFeeFixed:          decimal.RequireFromString("0.5"),
		FirstWithdrawalDelayMinutes: 60,
		LargeWithdrawalThreshold:    decimal.RequireFromString("1000"),
		LargeWithdrawalDelayMinutes: 240,
	}
}

func TestComputeFee(t *testing.T) {
	ctrl := controlsFixture()

	tests := []struct {
		amount string
		want   string
	}{
		{"100", "1.5"},     // 1% + 0.5
		{"50", "1"},        // 0.5 + 0.5
		{"0.01", "0.5001"}, // percent part of a tiny amount
		{"1000", "10.5"},
	}
	for _, tt := range tests {
		got := ComputeFee(ctrl, decimal.RequireFromString(tt.amount))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ComputeFee(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestComputeFeeRoundsToScale(t *testing.T) {
	ctrl := &models.WalletControls{
		WithdrawalFeePercent: decimal.RequireFromString("0.333"),
		WithdrawalFeeFixed:   decimal.Zero,
	}
	got := ComputeFee(ctrl, decimal.RequireFromString("10"))
	if got.Exponent() < -models.BalanceScale {
		t.Errorf("fee %s has more than %d decimal places", got, models.BalanceScale)
	}
}

func TestComputeDelay(t *testing.T) {
	ctrl := controlsFixture()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		hasPrior    bool
		amount      string
		wantMinutes int
		wantReason  string
	}{
		{"repeat small withdrawal", true, "100", 0, ""},
		{"first withdrawal", false, "100", 60, "first withdrawal"},
		{"large withdrawal", true, "1500", 240, "large withdrawal"},
		{"first and large takes longer delay", false, "1500", 240, "large withdrawal"},
		{"exactly at threshold is large", true, "1000", 240, "large withdrawal"},
		{"just under threshold is not large", true, "999.99999999", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			until, reason := ComputeDelay(ctrl, tt.hasPrior, decimal.RequireFromString(tt.amount), now)
			if tt.wantMinutes == 0 {
				if until != nil || reason != nil {
					t.Fatalf("expected no delay, got until=%v reason=%v", until, reason)
				}
				return
			}
			if until == nil || reason == nil {
				t.Fatal("expected a delay, got none")
			}
			want := now.Add(time.Duration(tt.wantMinutes) * time.Minute)
			if !until.Equal(want) {
				t.Errorf("delay until %s, want %s", until, want)
			}
			if *reason != tt.wantReason {
				t.Errorf("delay reason %q, want %q", *reason, tt.wantReason)
			}
		})
	}
}

func TestPasswordLockoutActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name      string
		changedAt *time.Time
		want      bool
	}{
		{"never changed", nil, false},
		{"changed an hour ago", ago(time.Hour), true},
		{"changed 23h ago", ago(23 * time.Hour), true},
		{"changed exactly 24h ago", ago(24 * time.Hour), false},
		{"changed last week", ago(7 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PasswordLockoutActive(tt.changedAt, now); got != tt.want {
				t.Errorf("PasswordLockoutActive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeDelayFirstWinsWhenLonger(t *testing.T) {
	ctrl := controlsFixture()
	ctrl.FirstWithdrawalDelayMinutes = 600
	now := time.Now()

	until, reason := ComputeDelay(ctrl, false, decimal.RequireFromString("1500"), now)
	if until == nil || reason == nil {
		t.Fatal("expected a delay")
	}
	if *reason != "first withdrawal" {
		t.Errorf("delay reason %q, want %q", *reason, "first withdrawal")
	}
	if got := until.Sub(now); got != 600*time.Minute {
		t.Errorf("delay %s, want %s", got, 600*time.Minute)
	}
}
