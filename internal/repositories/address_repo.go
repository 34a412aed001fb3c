package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablemarket/custody/internal/models"
)

type AddressRepo struct {
	pool *pgxpool.Pool
}

func NewAddressRepo(pool *pgxpool.Pool) *AddressRepo {
	return &AddressRepo{pool: pool}
}

// NextIndex reserves the next derivation index. A single atomic
// increment-and-return, not a read-then-write, so two concurrent callers
// can never receive the same index. Burned indices (dirty addresses) are
// simply never assigned.
func (r *AddressRepo) NextIndex(ctx context.Context) (uint32, error) {
	var index uint32
	err := r.pool.QueryRow(ctx, `
		UPDATE derivation_counter
		SET next_index = next_index + 1
		WHERE singleton
		RETURNING next_index - 1
	`).Scan(&index)
	return index, err
}

func (r *AddressRepo) GetByUser(ctx context.Context, userID uuid.UUID, network string) (*models.DepositAddress, error) {
	var a models.DepositAddress
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, network, address, derivation_index, encrypted_private_key, created_at
		FROM deposit_addresses WHERE user_id = $1 AND network = $2
	`, userID, network).Scan(&a.ID, &a.UserID, &a.Network, &a.Address, &a.DerivationIndex, &a.EncryptedPrivateKey, &a.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *AddressRepo) GetByAddress(ctx context.Context, address string) (*models.DepositAddress, error) {
	var a models.DepositAddress
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, network, address, derivation_index, encrypted_private_key, created_at
		FROM deposit_addresses WHERE address = $1
	`, address).Scan(&a.ID, &a.UserID, &a.Network, &a.Address, &a.DerivationIndex, &a.EncryptedPrivateKey, &a.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *AddressRepo) Create(ctx context.Context, a *models.DepositAddress) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deposit_addresses (user_id, network, address, derivation_index, encrypted_private_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.UserID, a.Network, a.Address, a.DerivationIndex, a.EncryptedPrivateKey).Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// ListActive returns every assigned deposit address for scanning.
func (r *AddressRepo) ListActive(ctx context.Context, network string) ([]models.DepositAddress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, network, address, derivation_index, encrypted_private_key, created_at
		FROM deposit_addresses WHERE network = $1
		ORDER BY derivation_index
	`, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []models.DepositAddress
	for rows.Next() {
		var a models.DepositAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.Network, &a.Address, &a.DerivationIndex, &a.EncryptedPrivateKey, &a.CreatedAt); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}
