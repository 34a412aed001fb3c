package scanner

import (
	"context"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/events"
	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
)

const sweepMineTimeout = 2 * time.Minute

// sweep consolidates credited deposits into the master wallet. Sweeping
// never touches ledger balances: the user was credited at credit time and
// this only moves the underlying tokens.
func (s *Scanner) sweep(ctx context.Context) {
	if !s.signer.Unlocked() {
		s.log.Warn("master wallet locked, skipping sweeps")
		return
	}

	deposits, err := s.deposits.ListSweepable(ctx)
	if err != nil {
		s.log.Error("list sweepable deposits", zap.Error(err))
		return
	}

	for _, d := range deposits {
		switch d.Status {
		case models.DepositStatusSweepPending:
			s.reconcileSweep(ctx, d)
		case models.DepositStatusCredited:
			s.attemptSweep(ctx, d)
		}
	}
}

// reconcileSweep checks whether an in-flight sweep transaction landed.
func (s *Scanner) reconcileSweep(ctx context.Context, d models.Deposit) {
	sw, err := s.sweeps.GetOrCreate(ctx, d.ID)
	if err != nil {
		s.log.Error("load sweep record", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}
	if sw.TxHash == nil {
		// Marked in flight with no hash recorded: send never happened,
		// send again on the credited path.
		s.retreatToCredited(ctx, d)
		return
	}

	confirmations, ok, err := s.client.TxConfirmations(ctx, *sw.TxHash)
	if err != nil {
		if errors.Is(err, chain.ErrTxNotFound) && time.Since(sw.UpdatedAt) > sweepMineTimeout {
			s.log.Warn("sweep transaction never mined, retrying",
				zap.String("tx_hash", *sw.TxHash))
			s.recordSweepFailure(ctx, d, "sweep transaction not mined")
		}
		return
	}
	if !ok {
		s.log.Warn("sweep transaction reverted", zap.String("tx_hash", *sw.TxHash))
		s.recordSweepFailure(ctx, d, "sweep transaction reverted")
		return
	}
	if confirmations == 0 {
		return
	}

	if err := s.sweeps.MarkSwept(ctx, d.ID); err != nil {
		s.log.Error("mark sweep complete", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}
	if err := s.deposits.SetStatus(ctx, d.ID, models.DepositStatusSweepPending, models.DepositStatusSwept); err != nil &&
		!errors.Is(err, repositories.ErrStaleStatus) {
		s.log.Error("mark deposit swept", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}

	s.log.Info("deposit swept",
		zap.String("deposit_id", d.ID.String()),
		zap.String("tx_hash", *sw.TxHash),
		zap.String("amount", d.Amount.String()),
	)
	_ = s.publisher.Publish(ctx, events.StreamWallet, events.Event{
		Type: events.EventSweepCompleted,
		Payload: map[string]any{
			"deposit_id": d.ID.String(),
			"tx_hash":    *sw.TxHash,
		},
	})
}

// attemptSweep funds gas if needed, signs with the deposit address key and
// broadcasts a transfer of the full token balance to the master wallet.
func (s *Scanner) attemptSweep(ctx context.Context, d models.Deposit) {
	sw, err := s.sweeps.GetOrCreate(ctx, d.ID)
	if err != nil {
		s.log.Error("load sweep record", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}
	if sw.Attempts >= s.maxSweepTries {
		s.giveUpSweep(ctx, d, sw.Attempts)
		return
	}

	addr, err := s.addresses.GetByAddress(ctx, d.ToAddress)
	if err != nil {
		s.log.Error("load deposit address", zap.String("address", d.ToAddress), zap.Error(err))
		return
	}

	balance, err := s.client.TokenBalanceRaw(ctx, d.ToAddress)
	if err != nil {
		s.recordSweepFailure(ctx, d, "read token balance: "+err.Error())
		return
	}
	if balance.Sign() == 0 {
		// Nothing left on the address, a previous sweep already moved it.
		if err := s.sweeps.MarkSwept(ctx, d.ID); err == nil {
			_ = s.deposits.SetStatus(ctx, d.ID, models.DepositStatusCredited, models.DepositStatusSweepPending)
			_ = s.deposits.SetStatus(ctx, d.ID, models.DepositStatusSweepPending, models.DepositStatusSwept)
		}
		return
	}

	if err := s.ensureGas(ctx, d.ToAddress); err != nil {
		s.recordSweepFailure(ctx, d, "fund gas: "+err.Error())
		return
	}

	key, err := s.vault.DecryptKey(addr)
	if err != nil {
		// Key material problems are not transient, stop retrying.
		s.log.Error("decrypt deposit key", zap.String("address", d.ToAddress), zap.Error(err))
		s.giveUpSweep(ctx, d, sw.Attempts)
		return
	}

	txHash, err := s.client.SendToken(ctx, key, s.masterAddress, balance)
	if err != nil {
		s.recordSweepFailure(ctx, d, "send sweep: "+err.Error())
		return
	}

	if err := s.sweeps.MarkSent(ctx, d.ID, txHash); err != nil {
		s.log.Error("record sweep tx", zap.String("tx_hash", txHash), zap.Error(err))
		return
	}
	if err := s.deposits.SetStatus(ctx, d.ID, models.DepositStatusCredited, models.DepositStatusSweepPending); err != nil &&
		!errors.Is(err, repositories.ErrStaleStatus) {
		s.log.Error("mark deposit sweep pending", zap.String("deposit_id", d.ID.String()), zap.Error(err))
	}

	s.log.Info("sweep broadcast",
		zap.String("deposit_id", d.ID.String()),
		zap.String("tx_hash", txHash),
	)
}

// ensureGas tops the deposit address up from the master wallet when its
// native balance cannot cover the sweep transfer.
func (s *Scanner) ensureGas(ctx context.Context, address string) error {
	cost, err := s.client.EstimateSweepGasCost(ctx)
	if err != nil {
		return err
	}
	have, err := s.client.NativeBalance(ctx, address)
	if err != nil {
		return err
	}
	if have.Cmp(cost) >= 0 {
		return nil
	}

	masterKey, err := s.signer.Key()
	if err != nil {
		return err
	}
	topUp := new(big.Int).Sub(cost, have)
	txHash, err := s.client.SendNative(ctx, masterKey, address, topUp)
	if err != nil {
		return err
	}
	s.log.Info("gas top-up sent",
		zap.String("address", address),
		zap.String("tx_hash", txHash),
		zap.String("wei", topUp.String()),
	)

	mined, err := s.client.WaitMined(ctx, txHash, sweepMineTimeout)
	if err != nil {
		return err
	}
	if !mined {
		return errors.New("gas top-up transaction reverted")
	}
	return nil
}

func (s *Scanner) recordSweepFailure(ctx context.Context, d models.Deposit, reason string) {
	attempts, err := s.sweeps.RecordFailure(ctx, d.ID, reason)
	if err != nil {
		s.log.Error("record sweep failure", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}
	s.log.Warn("sweep attempt failed",
		zap.String("deposit_id", d.ID.String()),
		zap.Int("attempts", attempts),
		zap.String("reason", reason),
	)

	// An in-flight deposit goes back to credited so the next cycle can
	// retry from the top.
	if d.Status == models.DepositStatusSweepPending {
		s.retreatToCredited(ctx, d)
	}
	if attempts >= s.maxSweepTries {
		s.giveUpSweep(ctx, d, attempts)
	}
}

func (s *Scanner) retreatToCredited(ctx context.Context, d models.Deposit) {
	if err := s.deposits.SetStatus(ctx, d.ID, models.DepositStatusSweepPending, models.DepositStatusCredited); err != nil &&
		!errors.Is(err, repositories.ErrStaleStatus) {
		s.log.Error("reset deposit for sweep retry", zap.String("deposit_id", d.ID.String()), zap.Error(err))
	}
}

// giveUpSweep parks the deposit as sweep_failed for manual intervention.
// The user's credit is untouched.
func (s *Scanner) giveUpSweep(ctx context.Context, d models.Deposit, attempts int) {
	if err := s.sweeps.MarkFailed(ctx, d.ID, "max sweep attempts reached"); err != nil {
		s.log.Error("mark sweep failed", zap.String("deposit_id", d.ID.String()), zap.Error(err))
		return
	}
	from := d.Status
	if from != models.DepositStatusCredited && from != models.DepositStatusSweepPending {
		from = models.DepositStatusCredited
	}
	if err := s.deposits.SetStatus(ctx, d.ID, from, models.DepositStatusSweepFailed); err != nil &&
		!errors.Is(err, repositories.ErrStaleStatus) {
		s.log.Error("mark deposit sweep failed", zap.String("deposit_id", d.ID.String()), zap.Error(err))
	}

	s.log.Error("sweep abandoned after max attempts",
		zap.String("deposit_id", d.ID.String()),
		zap.Int("attempts", attempts),
	)
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "system",
		Action:     "sweep_failed",
		EntityType: "deposit",
		EntityID:   &d.ID,
		Meta:       map[string]any{"attempts": attempts, "tx_hash": d.TxHash},
	})
}
