package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/events"
	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
)

var (
	ErrWithdrawalsDisabled     = errors.New("withdrawals are disabled")
	ErrBelowMinimum            = errors.New("amount below minimum withdrawal")
	ErrNotApproved             = errors.New("withdrawal is not approved")
	ErrDelayNotElapsed         = errors.New("withdrawal delay has not elapsed")
	ErrWalletLocked            = errors.New("master wallet is locked")
	ErrInsufficientLiquidity   = errors.New("master wallet cannot cover the withdrawal")
	ErrPasswordRecentlyChanged = errors.New("withdrawals are locked after a password change")
)

// passwordLockout is how long withdrawals stay blocked after the account
// password changes.
const passwordLockout = 24 * time.Hour

// PasswordLockoutActive reports whether a password change still blocks
// withdrawals at now. A nil changedAt means the password never changed.
func PasswordLockoutActive(changedAt *time.Time, now time.Time) bool {
	return changedAt != nil && now.Sub(*changedAt) < passwordLockout
}

type WithdrawalService struct {
	withdrawals *repositories.WithdrawalRepo
	wallets     *repositories.WalletRepo
	controls    *repositories.ControlsRepo
	audit       *repositories.AuditRepo
	client      *chain.Client
	signer      *chain.MasterSigner
	publisher   events.Publisher
	currency    string
	log         *zap.Logger
}

func NewWithdrawalService(
	withdrawals *repositories.WithdrawalRepo,
	wallets *repositories.WalletRepo,
	controls *repositories.ControlsRepo,
	audit *repositories.AuditRepo,
	client *chain.Client,
	signer *chain.MasterSigner,
	publisher events.Publisher,
	currency string,
	log *zap.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawals: withdrawals,
		wallets:     wallets,
		controls:    controls,
		audit:       audit,
		client:      client,
		signer:      signer,
		publisher:   publisher,
		currency:    currency,
		log:         log,
	}
}

// ComputeFee returns the platform fee for a withdrawal of amount, rounded
// to the ledger scale.
func ComputeFee(ctrl *models.WalletControls, amount decimal.Decimal) decimal.Decimal {
	pct := amount.Mul(ctrl.WithdrawalFeePercent).Div(decimal.NewFromInt(100))
	return pct.Add(ctrl.WithdrawalFeeFixed).Round(models.BalanceScale)
}

// ComputeDelay returns when a withdrawal may be processed and why it is
// held. First-ever withdrawals and amounts at or above the large threshold
// are delayed; when both apply the longer delay wins. Nil means no hold.
func ComputeDelay(ctrl *models.WalletControls, hasPrior bool, amount decimal.Decimal, now time.Time) (*time.Time, *string) {
	var minutes int
	var reason string

	if !hasPrior && ctrl.FirstWithdrawalDelayMinutes > 0 {
		minutes = ctrl.FirstWithdrawalDelayMinutes
		reason = "first withdrawal"
	}
	if amount.GreaterThanOrEqual(ctrl.LargeWithdrawalThreshold) && ctrl.LargeWithdrawalDelayMinutes > minutes {
		minutes = ctrl.LargeWithdrawalDelayMinutes
		reason = "large withdrawal"
	}
	if minutes == 0 {
		return nil, nil
	}

	until := now.Add(time.Duration(minutes) * time.Minute)
	return &until, &reason
}

// Request validates and accepts a withdrawal. Amount is what the
// destination address receives; the fee is charged on top.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, address string) (*models.WithdrawalRequest, error) {
	ctrl, err := s.controls.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ctrl.WithdrawalsEnabled || ctrl.EmergencyMode {
		return nil, ErrWithdrawalsDisabled
	}

	if err := chain.ValidateAddress(address); err != nil {
		return nil, err
	}
	if amount.LessThan(ctrl.MinWithdrawal) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, ctrl.MinWithdrawal)
	}
	if !ctrl.WalletUnlocked {
		return nil, ErrWalletLocked
	}

	changedAt, err := s.wallets.PasswordChangedAt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if PasswordLockoutActive(changedAt, time.Now()) {
		return nil, ErrPasswordRecentlyChanged
	}

	liquidity, err := s.client.TokenBalance(ctx, s.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("check master balance: %w", err)
	}
	if liquidity.LessThan(amount) {
		return nil, fmt.Errorf("%w: requested %s", ErrInsufficientLiquidity, amount)
	}

	wallet, err := s.wallets.EnsureWallet(ctx, userID, s.currency)
	if err != nil {
		return nil, err
	}

	hasPrior, err := s.withdrawals.HasPrior(ctx, userID)
	if err != nil {
		return nil, err
	}
	delayUntil, delayReason := ComputeDelay(ctrl, hasPrior, amount, time.Now())

	req := &models.WithdrawalRequest{
		UserID:        userID,
		WalletID:      wallet.ID,
		Amount:        amount,
		Fee:           ComputeFee(ctrl, amount),
		WalletAddress: address,
		DelayUntil:    delayUntil,
		DelayReason:   delayReason,
	}
	if err := s.withdrawals.Accept(ctx, req); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "withdrawal_requested",
		EntityType:  "withdrawal",
		EntityID:    &req.ID,
		Meta: map[string]any{
			"amount":  amount.String(),
			"fee":     req.Fee.String(),
			"address": address,
		},
	})
	_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventWithdrawalRequested,
		Payload: map[string]any{
			"user_id":       userID.String(),
			"withdrawal_id": req.ID.String(),
			"amount":        amount.String(),
		},
	})

	s.log.Info("withdrawal requested",
		zap.String("user_id", userID.String()),
		zap.String("withdrawal_id", req.ID.String()),
		zap.String("amount", amount.String()),
	)
	return req, nil
}

func (s *WithdrawalService) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.withdrawals.GetByID(ctx, id)
}

func (s *WithdrawalService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	return s.withdrawals.ListByUser(ctx, userID, limit, offset)
}

func (s *WithdrawalService) ListByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	return s.withdrawals.ListByStatus(ctx, status)
}

// Approve moves a pending request to approved. Processing still waits for
// any risk delay to elapse.
func (s *WithdrawalService) Approve(ctx context.Context, adminID, id uuid.UUID) (*models.WithdrawalRequest, error) {
	if err := s.withdrawals.MarkApproved(ctx, id); err != nil {
		return nil, err
	}
	req, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      "withdrawal_approved",
		EntityType:  "withdrawal",
		EntityID:    &id,
	})
	_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventWithdrawalApproved,
		Payload: map[string]any{
			"user_id":       req.UserID.String(),
			"withdrawal_id": id.String(),
		},
	})
	return req, nil
}

// Reject denies a request and refunds the net amount. The fee stands.
func (s *WithdrawalService) Reject(ctx context.Context, adminID, id uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if err := s.withdrawals.Reject(ctx, id, reason); err != nil {
		return nil, err
	}
	req, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      "withdrawal_rejected",
		EntityType:  "withdrawal",
		EntityID:    &id,
		Meta:        map[string]any{"reason": reason},
	})
	_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventWithdrawalRejected,
		Payload: map[string]any{
			"user_id":       req.UserID.String(),
			"withdrawal_id": id.String(),
			"reason":        reason,
		},
	})
	return req, nil
}

// Process sends an approved withdrawal on chain. It refuses while the
// risk delay is running or the master wallet is locked.
func (s *WithdrawalService) Process(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	req, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.WithdrawalStatusApproved {
		return nil, fmt.Errorf("%w: status is %s", ErrNotApproved, req.Status)
	}
	if req.DelayUntil != nil && time.Now().Before(*req.DelayUntil) {
		return nil, fmt.Errorf("%w: held until %s", ErrDelayNotElapsed, req.DelayUntil.Format(time.RFC3339))
	}
	if !s.signer.Unlocked() {
		return nil, ErrWalletLocked
	}

	if err := s.withdrawals.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}

	key, err := s.signer.Key()
	if err != nil {
		return nil, err
	}
	value := chain.ToBaseUnits(req.Amount, s.client.TokenDecimals())

	txHash, err := s.client.SendToken(ctx, key, req.WalletAddress, value)
	if err != nil {
		if markErr := s.withdrawals.MarkFailed(ctx, id, err.Error()); markErr != nil {
			s.log.Error("mark withdrawal failed", zap.String("withdrawal_id", id.String()), zap.Error(markErr))
		}
		_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
			Type: events.EventWithdrawalFailed,
			Payload: map[string]any{
				"user_id":       req.UserID.String(),
				"withdrawal_id": id.String(),
			},
		})
		return nil, fmt.Errorf("send withdrawal: %w", err)
	}

	if err := s.withdrawals.MarkSent(ctx, id, txHash); err != nil {
		// The transfer is on chain, only the record is stale. Loud log,
		// no retry: re-sending would double pay.
		s.log.Error("withdrawal sent but not recorded",
			zap.String("withdrawal_id", id.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "system",
		Action:     "withdrawal_sent",
		EntityType: "withdrawal",
		EntityID:   &id,
		Meta:       map[string]any{"tx_hash": txHash},
	})
	_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventWithdrawalSent,
		Payload: map[string]any{
			"user_id":       req.UserID.String(),
			"withdrawal_id": id.String(),
			"tx_hash":       txHash,
		},
	})

	s.log.Info("withdrawal sent",
		zap.String("withdrawal_id", id.String()),
		zap.String("tx_hash", txHash),
	)
	return s.withdrawals.GetByID(ctx, id)
}
