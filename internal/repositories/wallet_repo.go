package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stablemarket/custody/internal/ledger"
	"github.com/stablemarket/custody/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, currency, available_balance, escrow_balance, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.AvailableBalance, &w.EscrowBalance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &w, nil
}

// EnsureWallet returns the user's wallet for the currency, creating it if
// missing (wallets are created at registration; this covers both paths
// idempotently).
func (r *WalletRepo) EnsureWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id, currency) DO NOTHING
	`, userID, currency)
	if err != nil {
		return nil, err
	}
	return r.GetByUser(ctx, userID, currency)
}

func (r *WalletRepo) GetByUser(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2
	`, userID, currency))
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE id = $1
	`, id))
}

// lockWallet reads a wallet with a row lock inside tx. All concurrent
// credits/holds/debits on the same wallet serialize here.
func lockWallet(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE
	`, id))
}

func updateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, b ledger.Balances) error {
	_, err := tx.Exec(ctx, `
		UPDATE wallets SET available_balance = $1, escrow_balance = $2, updated_at = now()
		WHERE id = $3
	`, b.Available, b.Escrow, id)
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, wallet_id, type, amount, related_order_id, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.UserID, t.WalletID, t.Type, t.Amount, t.RelatedOrderID, t.Description).Scan(&t.ID, &t.CreatedAt)
}

// mutate applies fn to the locked wallet and persists the result together
// with the ledger rows fn produced, all in one database transaction.
func (r *WalletRepo) mutate(ctx context.Context, walletID uuid.UUID, fn func(w *models.Wallet) (ledger.Balances, []models.Transaction, error)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return err
	}

	balances, entries, err := fn(w)
	if err != nil {
		return err
	}

	if err := updateBalances(ctx, tx, walletID, balances); err != nil {
		return err
	}
	for i := range entries {
		entries[i].UserID = w.UserID
		entries[i].WalletID = w.ID
		if err := insertTransaction(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// CreditDeposit adds a credited deposit amount to the available balance.
func (r *WalletRepo) CreditDeposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) error {
	return r.mutate(ctx, walletID, func(w *models.Wallet) (ledger.Balances, []models.Transaction, error) {
		b, err := ledger.Credit(ledger.FromWallet(w), amount)
		if err != nil {
			return b, nil, err
		}
		return b, []models.Transaction{{
			Type:        models.TxTypeDeposit,
			Amount:      amount,
			Description: description,
		}}, nil
	})
}

// Hold moves amount from available to escrow for an order.
func (r *WalletRepo) Hold(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	return r.mutate(ctx, walletID, func(w *models.Wallet) (ledger.Balances, []models.Transaction, error) {
		b, err := ledger.Hold(ledger.FromWallet(w), amount)
		if err != nil {
			return b, nil, err
		}
		return b, []models.Transaction{{
			Type:           models.TxTypeEscrowHold,
			Amount:         amount,
			RelatedOrderID: &orderID,
			Description:    "escrow hold",
		}}, nil
	})
}

// Release returns escrowed funds to the same owner's available balance.
func (r *WalletRepo) Release(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	return r.mutate(ctx, walletID, func(w *models.Wallet) (ledger.Balances, []models.Transaction, error) {
		b, err := ledger.Release(ledger.FromWallet(w), amount)
		if err != nil {
			return b, nil, err
		}
		return b, []models.Transaction{{
			Type:           models.TxTypeEscrowRelease,
			Amount:         amount,
			RelatedOrderID: &orderID,
			Description:    "escrow release",
		}}, nil
	})
}

// Refund returns the full escrowed amount to the original holder.
func (r *WalletRepo) Refund(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	return r.mutate(ctx, walletID, func(w *models.Wallet) (ledger.Balances, []models.Transaction, error) {
		b, err := ledger.Refund(ledger.FromWallet(w), amount)
		if err != nil {
			return b, nil, err
		}
		return b, []models.Transaction{{
			Type:           models.TxTypeRefund,
			Amount:         amount,
			RelatedOrderID: &orderID,
			Description:    "escrow refund",
		}}, nil
	})
}

// Settle releases escrow to the seller with the platform fee split, in a
// single transaction across the three wallets. Wallets are locked in UUID
// order so two concurrent settlements cannot deadlock.
func (r *WalletRepo) Settle(ctx context.Context, holderID, sellerID, platformID uuid.UUID, amount, feeRate decimal.Decimal, orderID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	locked := make(map[uuid.UUID]*models.Wallet, 3)
	for _, id := range sortedIDs(holderID, sellerID, platformID) {
		if _, done := locked[id]; done {
			continue
		}
		w, err := lockWallet(ctx, tx, id)
		if err != nil {
			return err
		}
		locked[id] = w
	}

	holder, seller, platform := locked[holderID], locked[sellerID], locked[platformID]

	holderOut, sellerOut, fee, err := ledger.Settle(ledger.FromWallet(holder), ledger.FromWallet(seller), amount, feeRate)
	if err != nil {
		return err
	}
	platformOut, err := ledger.Credit(ledger.FromWallet(platform), fee)
	if err != nil {
		return err
	}

	if err := updateBalances(ctx, tx, holderID, holderOut); err != nil {
		return err
	}
	if err := updateBalances(ctx, tx, sellerID, sellerOut); err != nil {
		return err
	}
	if err := updateBalances(ctx, tx, platformID, platformOut); err != nil {
		return err
	}

	entries := []models.Transaction{
		{
			UserID: holder.UserID, WalletID: holder.ID,
			Type: models.TxTypeEscrowRelease, Amount: amount,
			RelatedOrderID: &orderID, Description: "trade settlement",
		},
		{
			UserID: platform.UserID, WalletID: platform.ID,
			Type: models.TxTypeFee, Amount: fee,
			RelatedOrderID: &orderID, Description: "platform fee",
		},
	}
	for i := range entries {
		if err := insertTransaction(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func sortedIDs(ids ...uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].String() < out[j-1].String(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// PasswordChangedAt returns when the user last changed their password,
// for the post-change withdrawal lockout. Nil when never changed.
func (r *WalletRepo) PasswordChangedAt(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var changedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT password_changed_at FROM users WHERE id = $1
	`, userID).Scan(&changedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return changedAt, nil
}
