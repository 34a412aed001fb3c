//go:build integration

package repositories

// Run with a throwaway database:
//   TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/db"
	"github.com/stablemarket/custody/internal/models"
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func createTestUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	email := fmt.Sprintf("%s@test.local", uuid.New())
	if err := pool.QueryRow(context.Background(), `
		INSERT INTO users (email) VALUES ($1) RETURNING id
	`, email).Scan(&id); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

// Simultaneous requests that each fit the user's daily cap but jointly
// exceed it must admit exactly one; the controls-row lock serializes them.
func TestAcceptConcurrentDailyCap(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `
		UPDATE wallet_controls SET user_daily_limit = 1000, platform_daily_limit = 1000000000
	`); err != nil {
		t.Fatalf("set controls: %v", err)
	}

	userID := createTestUser(t, pool)
	wallets := NewWalletRepo(pool)
	wallet, err := wallets.EnsureWallet(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if err := wallets.CreditDeposit(ctx, wallet.ID, decimal.NewFromInt(100000), "test funding"); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}

	withdrawals := NewWithdrawalRepo(pool)
	amount := decimal.NewFromInt(600) // two of these blow the 1000 cap

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = withdrawals.Accept(ctx, &models.WithdrawalRequest{
				UserID:        userID,
				WalletID:      wallet.ID,
				Amount:        amount,
				Fee:           decimal.Zero,
				WalletAddress: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrUserDailyLimit):
		default:
			t.Errorf("contender %d: unexpected error %v", i, err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted %d requests, want exactly 1", accepted)
	}

	// The single acceptance earmarked amount+fee exactly once.
	after, err := wallets.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	want := decimal.NewFromInt(100000).Sub(amount)
	if !after.AvailableBalance.Equal(want) {
		t.Errorf("available = %s, want %s", after.AvailableBalance, want)
	}
}

// Concurrent index reservations must never hand out the same derivation
// index; the counter is a single atomic UPDATE ... RETURNING.
func TestNextIndexConcurrentUnique(t *testing.T) {
	pool := integrationPool(t)
	addresses := NewAddressRepo(pool)
	ctx := context.Background()

	const contenders = 32
	indices := make([]uint32, contenders)
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			indices[i], errs[i] = addresses.NextIndex(ctx)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]int, contenders)
	for i := 0; i < contenders; i++ {
		if errs[i] != nil {
			t.Fatalf("contender %d: %v", i, errs[i])
		}
		if prev, dup := seen[indices[i]]; dup {
			t.Fatalf("index %d handed to both contender %d and %d", indices[i], prev, i)
		}
		seen[indices[i]] = i
	}
}
