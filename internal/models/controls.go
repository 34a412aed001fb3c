package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletControls is the singleton of admin-mutable platform limits and
// switches. Every mutation goes through the admin service and is audited.
type WalletControls struct {
	DepositsEnabled    bool `json:"deposits_enabled"`
	WithdrawalsEnabled bool `json:"withdrawals_enabled"`
	SweepsEnabled      bool `json:"sweeps_enabled"`
	EmergencyMode      bool `json:"emergency_mode"`
	WalletUnlocked     bool `json:"wallet_unlocked"`

	UserDailyLimit     decimal.Decimal `json:"user_daily_limit"`
	PlatformDailyLimit decimal.Decimal `json:"platform_daily_limit"`
	MinWithdrawal      decimal.Decimal `json:"min_withdrawal"`
	MinDepositAmount   decimal.Decimal `json:"min_deposit_amount"`

	WithdrawalFeePercent decimal.Decimal `json:"withdrawal_fee_percent"`
	WithdrawalFeeFixed   decimal.Decimal `json:"withdrawal_fee_fixed"`

	FirstWithdrawalDelayMinutes int             `json:"first_withdrawal_delay_minutes"`
	LargeWithdrawalThreshold    decimal.Decimal `json:"large_withdrawal_threshold"`
	LargeWithdrawalDelayMinutes int             `json:"large_withdrawal_delay_minutes"`

	RequiredConfirmations uint64    `json:"required_confirmations"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ControlsUpdate carries a partial admin update; nil fields are untouched.
type ControlsUpdate struct {
	DepositsEnabled    *bool `json:"deposits_enabled,omitempty"`
	WithdrawalsEnabled *bool `json:"withdrawals_enabled,omitempty"`
	SweepsEnabled      *bool `json:"sweeps_enabled,omitempty"`

	UserDailyLimit     *decimal.Decimal `json:"user_daily_limit,omitempty"`
	PlatformDailyLimit *decimal.Decimal `json:"platform_daily_limit,omitempty"`
	MinWithdrawal      *decimal.Decimal `json:"min_withdrawal,omitempty"`
	MinDepositAmount   *decimal.Decimal `json:"min_deposit_amount,omitempty"`

	WithdrawalFeePercent *decimal.Decimal `json:"withdrawal_fee_percent,omitempty"`
	WithdrawalFeeFixed   *decimal.Decimal `json:"withdrawal_fee_fixed,omitempty"`

	FirstWithdrawalDelayMinutes *int             `json:"first_withdrawal_delay_minutes,omitempty"`
	LargeWithdrawalThreshold    *decimal.Decimal `json:"large_withdrawal_threshold,omitempty"`
	LargeWithdrawalDelayMinutes *int             `json:"large_withdrawal_delay_minutes,omitempty"`

	RequiredConfirmations *uint64 `json:"required_confirmations,omitempty"`
}

// PublicControls is the subset exposed to regular users.
type PublicControls struct {
	DepositsEnabled          bool            `json:"deposits_enabled"`
	WithdrawalsEnabled       bool            `json:"withdrawals_enabled"`
	MinWithdrawal            decimal.Decimal `json:"min_withdrawal"`
	MinDepositAmount         decimal.Decimal `json:"min_deposit_amount"`
	WithdrawalFeePercent     decimal.Decimal `json:"withdrawal_fee_percent"`
	WithdrawalFeeFixed       decimal.Decimal `json:"withdrawal_fee_fixed"`
	UserDailyLimit           decimal.Decimal `json:"user_daily_limit"`
	LargeWithdrawalThreshold decimal.Decimal `json:"large_withdrawal_threshold"`
	RequiredConfirmations    uint64          `json:"required_confirmations"`
}

func (c *WalletControls) Public() PublicControls {
	return PublicControls{
		DepositsEnabled:          c.DepositsEnabled && !c.EmergencyMode,
		WithdrawalsEnabled:       c.WithdrawalsEnabled && !c.EmergencyMode,
		MinWithdrawal:            c.MinWithdrawal,
		MinDepositAmount:         c.MinDepositAmount,
		WithdrawalFeePercent:     c.WithdrawalFeePercent,
		WithdrawalFeeFixed:       c.WithdrawalFeeFixed,
		UserDailyLimit:           c.UserDailyLimit,
		LargeWithdrawalThreshold: c.LargeWithdrawalThreshold,
		RequiredConfirmations:    c.RequiredConfirmations,
	}
}
