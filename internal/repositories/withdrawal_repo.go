package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/ledger"
	"github.com/stablemarket/custody/internal/models"
)

var (
	ErrUserDailyLimit     = errors.New("user daily withdrawal limit exceeded")
	ErrPlatformDailyLimit = errors.New("platform daily withdrawal limit exceeded")
)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, user_id, wallet_id, amount, fee, wallet_address, status,
	tx_hash, delay_until, delay_reason, error_message, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.UserID, &w.WalletID, &w.Amount, &w.Fee, &w.WalletAddress, &w.Status,
		&w.TxHash, &w.DelayUntil, &w.DelayReason, &w.ErrorMessage, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &w, nil
}

// Accept atomically validates the balance and daily caps and earmarks the
// funds. The controls row is locked first, which serializes concurrent
// acceptances platform-wide: two simultaneous requests that individually
// fit a daily cap but jointly exceed it cannot both pass.
//
// On success the wallet's available balance is decremented by amount+fee
// and the withdraw/fee Transaction rows are written, all in one database
// transaction with the request row itself.
func (r *WithdrawalRepo) Accept(ctx context.Context, req *models.WithdrawalRequest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userLimit, platformLimit decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT user_daily_limit, platform_daily_limit
		FROM wallet_controls WHERE singleton FOR UPDATE
	`).Scan(&userLimit, &platformLimit); err != nil {
		return fmt.Errorf("lock controls: %w", err)
	}

	wallet, err := lockWallet(ctx, tx, req.WalletID)
	if err != nil {
		return err
	}

	total := req.Amount.Add(req.Fee)
	balances, err := ledger.Debit(ledger.FromWallet(wallet), total)
	if err != nil {
		return err
	}

	// Rejected requests returned their funds; everything else counts
	// against the calendar-day totals (failed requests stay earmarked).
	var userToday, platformToday decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE user_id = $1), 0),
			COALESCE(SUM(amount), 0)
		FROM withdrawal_requests
		WHERE status <> $2 AND created_at::date = CURRENT_DATE
	`, req.UserID, models.WithdrawalStatusRejected).Scan(&userToday, &platformToday); err != nil {
		return fmt.Errorf("sum daily totals: %w", err)
	}

	if userToday.Add(req.Amount).GreaterThan(userLimit) {
		return fmt.Errorf("%w: %s today + %s > %s", ErrUserDailyLimit, userToday, req.Amount, userLimit)
	}
	if platformToday.Add(req.Amount).GreaterThan(platformLimit) {
		return fmt.Errorf("%w: %s today + %s > %s", ErrPlatformDailyLimit, platformToday, req.Amount, platformLimit)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (user_id, wallet_id, amount, fee, wallet_address, status, delay_until, delay_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, req.UserID, req.WalletID, req.Amount, req.Fee, req.WalletAddress,
		models.WithdrawalStatusPending, req.DelayUntil, req.DelayReason,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}
	req.Status = models.WithdrawalStatusPending

	if err := updateBalances(ctx, tx, wallet.ID, balances); err != nil {
		return err
	}

	entries := []models.Transaction{
		{
			UserID: wallet.UserID, WalletID: wallet.ID,
			Type: models.TxTypeWithdraw, Amount: req.Amount,
			Description: "withdrawal request " + req.ID.String(),
		},
		{
			UserID: wallet.UserID, WalletID: wallet.ID,
			Type: models.TxTypeFee, Amount: req.Fee,
			Description: "withdrawal fee " + req.ID.String(),
		},
	}
	for i := range entries {
		if err := insertTransaction(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1
	`, id))
}

func (r *WithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	return r.list(ctx, `status = $1 ORDER BY created_at`, status)
}

func (r *WithdrawalRepo) list(ctx context.Context, tail string, args ...any) ([]models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.UserID, &w.WalletID, &w.Amount, &w.Fee, &w.WalletAddress, &w.Status,
			&w.TxHash, &w.DelayUntil, &w.DelayReason, &w.ErrorMessage, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// HasPrior reports whether the user has ever made a withdrawal request
// before, for the first-withdrawal delay tier.
func (r *WithdrawalRepo) HasPrior(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM withdrawal_requests WHERE user_id = $1)
	`, userID).Scan(&exists)
	return exists, err
}

// setStatus performs a guarded transition.
func (r *WithdrawalRepo) setStatus(ctx context.Context, id uuid.UUID, to string, from ...string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *WithdrawalRepo) MarkApproved(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.WithdrawalStatusApproved, models.WithdrawalStatusPending)
}

func (r *WithdrawalRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.WithdrawalStatusProcessing, models.WithdrawalStatusApproved)
}

func (r *WithdrawalRepo) MarkSent(ctx context.Context, id uuid.UUID, txHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $1, tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.WithdrawalStatusSent, txHash, id, models.WithdrawalStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// MarkFailed records a chain submission error. Funds stay earmarked: a
// failed broadcast can still be an ambiguous in-flight state, so only an
// explicit admin reject returns them.
func (r *WithdrawalRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.WithdrawalStatusFailed, errMsg, id, models.WithdrawalStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Reject denies a pending, approved or failed request and refunds the net
// amount to the wallet in the same transaction. The fee Transaction stands.
func (r *WithdrawalRepo) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req, err := scanWithdrawal(tx.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return err
	}
	if !models.IsValidWithdrawalTransition(req.Status, models.WithdrawalStatusRejected) {
		return fmt.Errorf("%w: cannot reject %s request", ErrStaleStatus, req.Status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3
	`, models.WithdrawalStatusRejected, reason, id); err != nil {
		return err
	}

	wallet, err := lockWallet(ctx, tx, req.WalletID)
	if err != nil {
		return err
	}
	balances, err := ledger.Credit(ledger.FromWallet(wallet), req.Amount)
	if err != nil {
		return err
	}
	if err := updateBalances(ctx, tx, wallet.ID, balances); err != nil {
		return err
	}

	entry := models.Transaction{
		UserID: wallet.UserID, WalletID: wallet.ID,
		Type: models.TxTypeRefund, Amount: req.Amount,
		Description: "withdrawal rejected: " + reason,
	}
	if err := insertTransaction(ctx, tx, &entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
