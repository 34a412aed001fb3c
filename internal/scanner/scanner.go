package scanner

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/events"
	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/vault"
)

const (
	cursorPrefix = "scanner:cursor:"

	// ReorgOverlap is how many blocks behind the saved cursor each scan
	// restarts from. Deposits re-detected inside the window are dropped
	// by the tx_hash uniqueness on insert.
	ReorgOverlap = 12
)

type Scanner struct {
	deposits  *repositories.DepositRepo
	sweeps    *repositories.SweepRepo
	addresses *repositories.AddressRepo
	wallets   *repositories.WalletRepo
	controls  *repositories.ControlsRepo
	audit     *repositories.AuditRepo

	client    *chain.Client
	vault     *vault.Vault
	signer    *chain.MasterSigner
	rdb       *redis.Client
	publisher events.Publisher
	log       *zap.Logger

	network  string
	currency string
	workers  int

	masterAddress      string
	masterKeyEncrypted string
	cipher             chain.Decrypter
	maxSweepTries      int

	ticking atomic.Bool
}

type Config struct {
	Network            string
	Currency           string
	Workers            int
	MasterAddress      string
	MasterKeyEncrypted string
	MaxSweepTries      int
}

func New(
	deposits *repositories.DepositRepo,
	sweeps *repositories.SweepRepo,
	addresses *repositories.AddressRepo,
	wallets *repositories.WalletRepo,
	controls *repositories.ControlsRepo,
	audit *repositories.AuditRepo,
	client *chain.Client,
	v *vault.Vault,
	signer *chain.MasterSigner,
	cipher chain.Decrypter,
	rdb *redis.Client,
	publisher events.Publisher,
	cfg Config,
	log *zap.Logger,
) *Scanner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	maxTries := cfg.MaxSweepTries
	if maxTries <= 0 {
		maxTries = 5
	}
	return &Scanner{
		deposits:  deposits,
		sweeps:    sweeps,
		addresses: addresses,
		wallets:   wallets,
		controls:  controls,
		audit:     audit,
		client:    client,
		vault:     v,
		signer:    signer,
		rdb:       rdb,
		publisher: publisher,
		log:       log,
		network:   cfg.Network,
		currency:  cfg.Currency,
		workers:   workers,

		masterAddress:      cfg.MasterAddress,
		masterKeyEncrypted: cfg.MasterKeyEncrypted,
		cipher:             cipher,
		maxSweepTries:      maxTries,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full scan cycle. Re-entrant calls while a cycle is still
// running return immediately so a slow RPC endpoint cannot stack cycles.
func (s *Scanner) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn("scan cycle still running, skipping tick")
		return
	}
	defer s.ticking.Store(false)

	ctrl, err := s.controls.Get(ctx)
	if err != nil {
		s.log.Error("load wallet controls", zap.Error(err))
		return
	}
	s.syncSignerLock(ctrl)

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		s.log.Error("get chain head", zap.Error(err))
		return
	}

	if ctrl.DepositsEnabled && !ctrl.EmergencyMode {
		s.discover(ctx, ctrl, head)
	}
	s.confirm(ctx, ctrl)
	s.credit(ctx, ctrl)
	if ctrl.SweepsEnabled && !ctrl.EmergencyMode {
		s.sweep(ctx)
	}
}

// syncSignerLock follows the persisted unlock flag. Admins flip the flag
// through the API process; this keeps the scanner's in-memory signer in
// step without sharing key material between processes.
func (s *Scanner) syncSignerLock(ctrl *models.WalletControls) {
	switch {
	case ctrl.WalletUnlocked && !s.signer.Unlocked():
		if s.masterKeyEncrypted == "" {
			s.log.Warn("unlock requested but no master key configured")
			return
		}
		if err := s.signer.Unlock(s.masterKeyEncrypted, s.cipher); err != nil {
			s.log.Error("unlock master signer", zap.Error(err))
			return
		}
		s.log.Info("master signer unlocked")
	case !ctrl.WalletUnlocked && s.signer.Unlocked():
		s.signer.Lock()
		s.log.Info("master signer locked")
	}
}

// discover scans every active deposit address for new token transfers.
// Addresses are scanned concurrently with a bounded worker pool.
func (s *Scanner) discover(ctx context.Context, ctrl *models.WalletControls, head uint64) {
	addrs, err := s.addresses.ListActive(ctx, s.network)
	if err != nil {
		s.log.Error("list deposit addresses", zap.Error(err))
		return
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, a := range addrs {
		wg.Add(1)
		sem <- struct{}{}
		go func(a models.DepositAddress) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.scanAddress(ctx, a, ctrl, head); err != nil {
				s.log.Error("scan address failed",
					zap.String("address", a.Address), zap.Error(err))
			}
		}(a)
	}
	wg.Wait()
}

func (s *Scanner) scanAddress(ctx context.Context, a models.DepositAddress, ctrl *models.WalletControls, head uint64) error {
	fromBlock := s.loadCursor(ctx, a.Address)
	if fromBlock == 0 {
		// First scan of a freshly assigned address: the vault probed it
		// clean, so there is no history worth walking.
		fromBlock = head
	}
	if fromBlock > ReorgOverlap {
		fromBlock -= ReorgOverlap
	} else {
		fromBlock = 0
	}
	if fromBlock > head {
		return nil
	}

	transfers, err := s.client.TokenTransfersTo(ctx, a.Address, fromBlock, head)
	if err != nil {
		return err
	}

	for _, t := range transfers {
		amount := chain.FromBaseUnits(t.Value, s.client.TokenDecimals())
		if !amount.IsPositive() {
			continue
		}

		confirmations := uint64(0)
		if head >= t.BlockNumber {
			confirmations = head - t.BlockNumber + 1
		}

		d := &models.Deposit{
			UserID:                a.UserID,
			TxHash:                t.TxHash,
			FromAddress:           t.From,
			ToAddress:             a.Address,
			Amount:                amount,
			BlockNumber:           t.BlockNumber,
			Confirmations:         confirmations,
			RequiredConfirmations: ctrl.RequiredConfirmations,
			Status:                models.DepositStatusPending,
		}
		created, err := s.deposits.Insert(ctx, d)
		if err != nil {
			return err
		}
		if !created {
			continue
		}

		s.log.Info("deposit detected",
			zap.String("tx_hash", t.TxHash),
			zap.String("to", a.Address),
			zap.String("amount", amount.String()),
			zap.Uint64("block", t.BlockNumber),
		)
		_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
			Type: events.EventDepositDetected,
			Payload: map[string]any{
				"user_id": a.UserID.String(),
				"tx_hash": t.TxHash,
				"amount":  amount.String(),
			},
		})
	}

	s.saveCursor(ctx, a.Address, head)
	return nil
}

// confirm advances confirmation counts on unconfirmed deposits and
// promotes those that have reached the required depth.
func (s *Scanner) confirm(ctx context.Context, ctrl *models.WalletControls) {
	pending, err := s.deposits.ListUnconfirmed(ctx)
	if err != nil {
		s.log.Error("list unconfirmed deposits", zap.Error(err))
		return
	}

	for _, d := range pending {
		confirmations, ok, err := s.client.TxConfirmations(ctx, d.TxHash)
		if err != nil {
			if errors.Is(err, chain.ErrTxNotFound) {
				// Likely reorged out; the overlap window re-detects it
				// if it lands again.
				s.log.Warn("deposit transaction vanished from chain",
					zap.String("tx_hash", d.TxHash))
				continue
			}
			s.log.Error("check confirmations",
				zap.String("tx_hash", d.TxHash), zap.Error(err))
			continue
		}
		if !ok {
			s.log.Warn("deposit transaction reverted on chain",
				zap.String("tx_hash", d.TxHash))
			continue
		}

		// The threshold pinned at detection time stands even if admins
		// raise the platform setting afterwards.
		required := d.RequiredConfirmations
		if required == 0 {
			required = ctrl.RequiredConfirmations
		}

		if confirmations < required {
			if err := s.deposits.UpdateConfirmations(ctx, d.ID, confirmations); err != nil {
				s.log.Error("update confirmations",
					zap.String("tx_hash", d.TxHash), zap.Error(err))
			}
			continue
		}

		if err := s.deposits.MarkConfirmed(ctx, d.ID, confirmations); err != nil {
			if !errors.Is(err, repositories.ErrStaleStatus) {
				s.log.Error("mark deposit confirmed",
					zap.String("tx_hash", d.TxHash), zap.Error(err))
			}
			continue
		}

		s.log.Info("deposit confirmed",
			zap.String("tx_hash", d.TxHash),
			zap.Uint64("confirmations", confirmations),
		)
		_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
			Type: events.EventDepositConfirmed,
			Payload: map[string]any{
				"user_id": d.UserID.String(),
				"tx_hash": d.TxHash,
				"amount":  d.Amount.String(),
			},
		})
	}
}

// credit applies confirmed deposits to wallet balances once the safety
// delay has elapsed.
func (s *Scanner) credit(ctx context.Context, ctrl *models.WalletControls) {
	cutoff := time.Now().Add(-CreditDelay)
	ready, err := s.deposits.ListCreditable(ctx, cutoff)
	if err != nil {
		s.log.Error("list creditable deposits", zap.Error(err))
		return
	}

	for _, d := range ready {
		switch DecideCredit(&d, ctrl.MinDepositAmount, time.Now()) {
		case CreditWait:
			continue

		case CreditDust:
			if err := s.deposits.MarkCredited(ctx, d.ID); err != nil {
				if !errors.Is(err, repositories.ErrStaleStatus) {
					s.log.Error("mark dust deposit",
						zap.String("tx_hash", d.TxHash), zap.Error(err))
				}
				continue
			}
			s.log.Info("dust deposit recorded without credit",
				zap.String("tx_hash", d.TxHash),
				zap.String("amount", d.Amount.String()),
			)
			_ = s.audit.Log(ctx, models.AuditLog{
				ActorType:  "system",
				Action:     "deposit_dust",
				EntityType: "deposit",
				EntityID:   &d.ID,
				Meta:       map[string]any{"tx_hash": d.TxHash, "amount": d.Amount.String()},
			})

		case CreditApply:
			wallet, err := s.wallets.EnsureWallet(ctx, d.UserID, s.currency)
			if err != nil {
				s.log.Error("ensure wallet for credit",
					zap.String("user_id", d.UserID.String()), zap.Error(err))
				continue
			}
			if err := s.deposits.CreditToWallet(ctx, &d, wallet.ID); err != nil {
				if !errors.Is(err, repositories.ErrStaleStatus) {
					s.log.Error("credit deposit",
						zap.String("tx_hash", d.TxHash), zap.Error(err))
				}
				continue
			}
			s.log.Info("deposit credited",
				zap.String("tx_hash", d.TxHash),
				zap.String("user_id", d.UserID.String()),
				zap.String("amount", d.Amount.String()),
			)
			_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
				Type: events.EventDepositCredited,
				Payload: map[string]any{
					"user_id": d.UserID.String(),
					"tx_hash": d.TxHash,
					"amount":  d.Amount.String(),
				},
			})
		}
	}
}

func (s *Scanner) loadCursor(ctx context.Context, address string) uint64 {
	val, err := s.rdb.Get(ctx, cursorPrefix+address).Result()
	if err != nil || val == "" {
		return 0
	}
	block, _ := strconv.ParseUint(val, 10, 64)
	return block
}

func (s *Scanner) saveCursor(ctx context.Context, address string, block uint64) {
	s.rdb.Set(ctx, cursorPrefix+address, strconv.FormatUint(block, 10), 0)
}
