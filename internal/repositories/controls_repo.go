package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablemarket/custody/internal/models"
)

type ControlsRepo struct {
	pool *pgxpool.Pool
}

func NewControlsRepo(pool *pgxpool.Pool) *ControlsRepo {
	return &ControlsRepo{pool: pool}
}

const controlsColumns = `deposits_enabled, withdrawals_enabled, sweeps_enabled, emergency_mode, wallet_unlocked,
	user_daily_limit, platform_daily_limit, min_withdrawal, min_deposit_amount,
	withdrawal_fee_percent, withdrawal_fee_fixed,
	first_withdrawal_delay_minutes, large_withdrawal_threshold, large_withdrawal_delay_minutes,
	required_confirmations, updated_at`

func (r *ControlsRepo) Get(ctx context.Context) (*models.WalletControls, error) {
	var c models.WalletControls
	err := r.pool.QueryRow(ctx, `
		SELECT `+controlsColumns+` FROM wallet_controls WHERE singleton
	`).Scan(&c.DepositsEnabled, &c.WithdrawalsEnabled, &c.SweepsEnabled, &c.EmergencyMode, &c.WalletUnlocked,
		&c.UserDailyLimit, &c.PlatformDailyLimit, &c.MinWithdrawal, &c.MinDepositAmount,
		&c.WithdrawalFeePercent, &c.WithdrawalFeeFixed,
		&c.FirstWithdrawalDelayMinutes, &c.LargeWithdrawalThreshold, &c.LargeWithdrawalDelayMinutes,
		&c.RequiredConfirmations, &c.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// Update applies a partial update and returns the resulting row. Nil
// fields keep their current value via COALESCE.
func (r *ControlsRepo) Update(ctx context.Context, u *models.ControlsUpdate) (*models.WalletControls, error) {
	var c models.WalletControls
	err := r.pool.QueryRow(ctx, `
		UPDATE wallet_controls SET
			deposits_enabled = COALESCE($1, deposits_enabled),
			withdrawals_enabled = COALESCE($2, withdrawals_enabled),
			sweeps_enabled = COALESCE($3, sweeps_enabled),
			user_daily_limit = COALESCE($4, user_daily_limit),
			platform_daily_limit = COALESCE($5, platform_daily_limit),
			min_withdrawal = COALESCE($6, min_withdrawal),
			min_deposit_amount = COALESCE($7, min_deposit_amount),
			withdrawal_fee_percent = COALESCE($8, withdrawal_fee_percent),
			withdrawal_fee_fixed = COALESCE($9, withdrawal_fee_fixed),
			first_withdrawal_delay_minutes = COALESCE($10, first_withdrawal_delay_minutes),
			large_withdrawal_threshold = COALESCE($11, large_withdrawal_threshold),
			large_withdrawal_delay_minutes = COALESCE($12, large_withdrawal_delay_minutes),
			required_confirmations = COALESCE($13, required_confirmations),
			updated_at = now()
		WHERE singleton
		RETURNING `+controlsColumns+`
	`, u.DepositsEnabled, u.WithdrawalsEnabled, u.SweepsEnabled,
		u.UserDailyLimit, u.PlatformDailyLimit, u.MinWithdrawal, u.MinDepositAmount,
		u.WithdrawalFeePercent, u.WithdrawalFeeFixed,
		u.FirstWithdrawalDelayMinutes, u.LargeWithdrawalThreshold, u.LargeWithdrawalDelayMinutes,
		u.RequiredConfirmations,
	).Scan(&c.DepositsEnabled, &c.WithdrawalsEnabled, &c.SweepsEnabled, &c.EmergencyMode, &c.WalletUnlocked,
		&c.UserDailyLimit, &c.PlatformDailyLimit, &c.MinWithdrawal, &c.MinDepositAmount,
		&c.WithdrawalFeePercent, &c.WithdrawalFeeFixed,
		&c.FirstWithdrawalDelayMinutes, &c.LargeWithdrawalThreshold, &c.LargeWithdrawalDelayMinutes,
		&c.RequiredConfirmations, &c.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

func (r *ControlsRepo) SetWalletUnlocked(ctx context.Context, unlocked bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallet_controls SET wallet_unlocked = $1, updated_at = now() WHERE singleton
	`, unlocked)
	return err
}

func (r *ControlsRepo) SetEmergencyMode(ctx context.Context, on bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallet_controls SET emergency_mode = $1, updated_at = now() WHERE singleton
	`, on)
	return err
}
