package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
)

// LedgerService is the escrow surface other backend services call when an
// order moves through its lifecycle. All balance math and locking happens in
// the wallet repository; this layer adds the audit trail.
type LedgerService struct {
	wallets *repositories.WalletRepo
	audit   *repositories.AuditRepo
	log     *zap.Logger
}

func NewLedgerService(wallets *repositories.WalletRepo, audit *repositories.AuditRepo, log *zap.Logger) *LedgerService {
	return &LedgerService{wallets: wallets, audit: audit, log: log}
}

// Hold earmarks amount from the buyer's available balance for an order.
func (s *LedgerService) Hold(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	if err := s.wallets.Hold(ctx, walletID, amount, orderID); err != nil {
		return err
	}
	s.auditEscrow(ctx, "escrow_hold", walletID, amount, orderID)
	return nil
}

// Release returns escrowed funds to the same wallet's available balance,
// used when an order is cancelled before any obligation arose.
func (s *LedgerService) Release(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	if err := s.wallets.Release(ctx, walletID, amount, orderID); err != nil {
		return err
	}
	s.auditEscrow(ctx, "escrow_release", walletID, amount, orderID)
	return nil
}

// Refund returns the escrowed amount to the buyer after a dispute resolves
// in their favor.
func (s *LedgerService) Refund(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	if err := s.wallets.Refund(ctx, walletID, amount, orderID); err != nil {
		return err
	}
	s.auditEscrow(ctx, "escrow_refund", walletID, amount, orderID)
	return nil
}

// Settle pays the seller out of the buyer's escrow, routing the platform
// fee cut to the platform wallet.
func (s *LedgerService) Settle(ctx context.Context, holderID, sellerID, platformID uuid.UUID, amount, feeRate decimal.Decimal, orderID uuid.UUID) error {
	if err := s.wallets.Settle(ctx, holderID, sellerID, platformID, amount, feeRate, orderID); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "system",
		Action:     "escrow_settle",
		EntityType: "order",
		EntityID:   &orderID,
		Meta: map[string]any{
			"holder_wallet_id": holderID.String(),
			"seller_wallet_id": sellerID.String(),
			"amount":           amount.String(),
			"fee_rate":         feeRate.String(),
		},
	})
	return nil
}

func (s *LedgerService) auditEscrow(ctx context.Context, action string, walletID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorType:  "system",
		Action:     action,
		EntityType: "order",
		EntityID:   &orderID,
		Meta: map[string]any{
			"wallet_id": walletID.String(),
			"amount":    amount.String(),
		},
	}); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
