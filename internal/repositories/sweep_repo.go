package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablemarket/custody/internal/models"
)

type SweepRepo struct {
	pool *pgxpool.Pool
}

func NewSweepRepo(pool *pgxpool.Pool) *SweepRepo {
	return &SweepRepo{pool: pool}
}

// GetOrCreate returns the sweep record for a deposit, creating the
// zero-attempt row on first sight. One row per deposit, updated in place
// on retries.
func (r *SweepRepo) GetOrCreate(ctx context.Context, depositID uuid.UUID) (*models.Sweep, error) {
	var s models.Sweep
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sweeps (deposit_id, status, attempts)
		VALUES ($1, $2, 0)
		ON CONFLICT (deposit_id) DO UPDATE SET deposit_id = EXCLUDED.deposit_id
		RETURNING id, deposit_id, tx_hash, status, attempts, last_attempt_at, error_message, created_at, updated_at
	`, depositID, models.SweepStatusPending).Scan(
		&s.ID, &s.DepositID, &s.TxHash, &s.Status, &s.Attempts, &s.LastAttemptAt, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordFailure increments the attempt counter and stores the error for
// operator diagnosis. Returns the new attempt count.
func (r *SweepRepo) RecordFailure(ctx context.Context, depositID uuid.UUID, errMsg string) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE sweeps
		SET attempts = attempts + 1, last_attempt_at = now(),
		    error_message = $1, status = $2, updated_at = now()
		WHERE deposit_id = $3
		RETURNING attempts
	`, errMsg, models.SweepStatusPending, depositID).Scan(&attempts)
	return attempts, err
}

// MarkSent stores the broadcast tx hash; the sweep is in flight.
func (r *SweepRepo) MarkSent(ctx context.Context, depositID uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sweeps
		SET status = $1, tx_hash = $2, attempts = attempts + 1, last_attempt_at = now(), updated_at = now()
		WHERE deposit_id = $3
	`, models.SweepStatusSent, txHash, depositID)
	return err
}

func (r *SweepRepo) MarkSwept(ctx context.Context, depositID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sweeps SET status = $1, error_message = NULL, updated_at = now()
		WHERE deposit_id = $2
	`, models.SweepStatusSwept, depositID)
	return err
}

// MarkFailed is terminal: automatic retry stops, manual intervention takes
// over.
func (r *SweepRepo) MarkFailed(ctx context.Context, depositID uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sweeps SET status = $1, error_message = $2, updated_at = now()
		WHERE deposit_id = $3
	`, models.SweepStatusFailed, errMsg, depositID)
	return err
}
