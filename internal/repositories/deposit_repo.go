package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablemarket/custody/internal/ledger"
	"github.com/stablemarket/custody/internal/models"
)

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

const depositColumns = `id, user_id, tx_hash, from_address, to_address, amount, block_number,
	confirmations, required_confirmations, status, confirmed_at, credited_at, created_at, updated_at`

func scanDeposit(row pgx.Row) (*models.Deposit, error) {
	var d models.Deposit
	err := row.Scan(&d.ID, &d.UserID, &d.TxHash, &d.FromAddress, &d.ToAddress, &d.Amount,
		&d.BlockNumber, &d.Confirmations, &d.RequiredConfirmations, &d.Status,
		&d.ConfirmedAt, &d.CreditedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &d, nil
}

// Insert records a newly discovered transfer. Returns false when the tx
// hash is already known (rescans with the overlap window hit this
// constantly; it is the idempotency guarantee, not an error).
func (r *DepositRepo) Insert(ctx context.Context, d *models.Deposit) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO deposits (user_id, tx_hash, from_address, to_address, amount,
			block_number, confirmations, required_confirmations, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO NOTHING
	`, d.UserID, d.TxHash, d.FromAddress, d.ToAddress, d.Amount,
		d.BlockNumber, d.Confirmations, d.RequiredConfirmations, d.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DepositRepo) GetByTxHash(ctx context.Context, txHash string) (*models.Deposit, error) {
	return scanDeposit(r.pool.QueryRow(ctx, `
		SELECT `+depositColumns+` FROM deposits WHERE tx_hash = $1
	`, txHash))
}

func (r *DepositRepo) listWhere(ctx context.Context, where string, args ...any) ([]models.Deposit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+depositColumns+` FROM deposits WHERE `+where+` ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.TxHash, &d.FromAddress, &d.ToAddress, &d.Amount,
			&d.BlockNumber, &d.Confirmations, &d.RequiredConfirmations, &d.Status,
			&d.ConfirmedAt, &d.CreditedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// ListUnconfirmed returns deposits still tracking confirmations.
func (r *DepositRepo) ListUnconfirmed(ctx context.Context) ([]models.Deposit, error) {
	return r.listWhere(ctx, `status IN ($1, $2)`, models.DepositStatusPending, models.DepositStatusConfirming)
}

// ListCreditable returns confirmed deposits whose safety delay elapsed
// before the cutoff.
func (r *DepositRepo) ListCreditable(ctx context.Context, confirmedBefore time.Time) ([]models.Deposit, error) {
	return r.listWhere(ctx, `status = $1 AND confirmed_at <= $2`, models.DepositStatusConfirmed, confirmedBefore)
}

// ListSweepable returns credited deposits awaiting consolidation,
// including sweep_pending ones whose broadcast outcome needs reconciling.
func (r *DepositRepo) ListSweepable(ctx context.Context) ([]models.Deposit, error) {
	return r.listWhere(ctx, `status IN ($1, $2)`, models.DepositStatusCredited, models.DepositStatusSweepPending)
}

func (r *DepositRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Deposit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+depositColumns+` FROM deposits WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.TxHash, &d.FromAddress, &d.ToAddress, &d.Amount,
			&d.BlockNumber, &d.Confirmations, &d.RequiredConfirmations, &d.Status,
			&d.ConfirmedAt, &d.CreditedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// UpdateConfirmations advances the confirmation count and moves pending
// deposits to confirming.
func (r *DepositRepo) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deposits
		SET confirmations = $1,
		    status = CASE WHEN status = $2 AND $1 > 0 THEN $3 ELSE status END,
		    updated_at = now()
		WHERE id = $4
	`, confirmations, models.DepositStatusPending, models.DepositStatusConfirming, id)
	return err
}

// MarkConfirmed stamps confirmed_at. Guarded so a concurrent tick cannot
// confirm twice.
func (r *DepositRepo) MarkConfirmed(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deposits
		SET status = $1, confirmations = $2, confirmed_at = now(), updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.DepositStatusConfirmed, confirmations, id,
		models.DepositStatusPending, models.DepositStatusConfirming)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// MarkCredited transitions confirmed -> credited without touching any
// balance. Used for dust deposits below the platform minimum.
func (r *DepositRepo) MarkCredited(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deposits
		SET status = $1, credited_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.DepositStatusCredited, id, models.DepositStatusConfirmed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// CreditToWallet transitions confirmed -> credited and applies the amount
// to the wallet's available balance in one database transaction. A second
// caller racing on the same deposit gets ErrStaleStatus and must not touch
// the balance.
func (r *DepositRepo) CreditToWallet(ctx context.Context, d *models.Deposit, walletID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE deposits
		SET status = $1, credited_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.DepositStatusCredited, d.ID, models.DepositStatusConfirmed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}

	wallet, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return err
	}
	balances, err := ledger.Credit(ledger.FromWallet(wallet), d.Amount)
	if err != nil {
		return err
	}
	if err := updateBalances(ctx, tx, walletID, balances); err != nil {
		return err
	}

	entry := models.Transaction{
		UserID: wallet.UserID, WalletID: wallet.ID,
		Type: models.TxTypeDeposit, Amount: d.Amount,
		Description: "deposit " + d.TxHash,
	}
	if err := insertTransaction(ctx, tx, &entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetStatus performs a guarded status transition.
func (r *DepositRepo) SetStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deposits SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}
