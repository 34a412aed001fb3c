package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/vault"
)

var ErrDepositsDisabled = errors.New("deposits are disabled")

type WalletService struct {
	wallets      *repositories.WalletRepo
	deposits     *repositories.DepositRepo
	transactions *repositories.TransactionRepo
	controls     *repositories.ControlsRepo
	audit        *repositories.AuditRepo
	vault        *vault.Vault
	currency     string
	log          *zap.Logger
}

func NewWalletService(
	wallets *repositories.WalletRepo,
	deposits *repositories.DepositRepo,
	transactions *repositories.TransactionRepo,
	controls *repositories.ControlsRepo,
	audit *repositories.AuditRepo,
	v *vault.Vault,
	currency string,
	log *zap.Logger,
) *WalletService {
	return &WalletService{
		wallets:      wallets,
		deposits:     deposits,
		transactions: transactions,
		controls:     controls,
		audit:        audit,
		vault:        v,
		currency:     currency,
		log:          log,
	}
}

// Snapshot returns the user's wallet, creating it on first touch, along
// with their deposit address if one was ever assigned.
func (s *WalletService) Snapshot(ctx context.Context, userID uuid.UUID) (*models.Wallet, *models.DepositAddress, error) {
	wallet, err := s.wallets.EnsureWallet(ctx, userID, s.currency)
	if err != nil {
		return nil, nil, err
	}
	addr, err := s.vault.GetDepositAddress(ctx, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, err
	}
	return wallet, addr, nil
}

// AssignDepositAddress hands the user their deposit address, deriving a
// fresh one on first request. Idempotent.
func (s *WalletService) AssignDepositAddress(ctx context.Context, userID uuid.UUID) (*models.DepositAddress, error) {
	ctrl, err := s.controls.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ctrl.DepositsEnabled || ctrl.EmergencyMode {
		return nil, ErrDepositsDisabled
	}

	if _, err := s.wallets.EnsureWallet(ctx, userID, s.currency); err != nil {
		return nil, err
	}

	addr, err := s.vault.AssignDepositAddress(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "deposit_address_assigned",
		EntityType:  "deposit_address",
		EntityID:    &addr.ID,
		Meta:        map[string]any{"address": addr.Address},
	})
	return addr, nil
}

func (s *WalletService) ListDeposits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Deposit, error) {
	return s.deposits.ListByUser(ctx, userID, limit, offset)
}

func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	return s.transactions.ListByUser(ctx, userID, limit, offset)
}

// PublicControls exposes the user-visible subset of platform limits.
func (s *WalletService) PublicControls(ctx context.Context) (*models.PublicControls, error) {
	ctrl, err := s.controls.Get(ctx)
	if err != nil {
		return nil, err
	}
	pub := ctrl.Public()
	return &pub, nil
}
