package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
)

var ErrNoMasterKey = errors.New("no encrypted master key configured")

type AdminService struct {
	controls *repositories.ControlsRepo
	audit    *repositories.AuditRepo

	signer             *chain.MasterSigner
	cipher             chain.Decrypter
	masterKeyEncrypted string

	log *zap.Logger
}

func NewAdminService(
	controls *repositories.ControlsRepo,
	audit *repositories.AuditRepo,
	signer *chain.MasterSigner,
	cipher chain.Decrypter,
	masterKeyEncrypted string,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		controls:           controls,
		audit:              audit,
		signer:             signer,
		cipher:             cipher,
		masterKeyEncrypted: masterKeyEncrypted,
		log:                log,
	}
}

// UnlockMaster decrypts the master key into this process and persists the
// unlock flag so the scanner process follows on its next cycle.
func (s *AdminService) UnlockMaster(ctx context.Context, adminID uuid.UUID) error {
	if s.masterKeyEncrypted == "" {
		return ErrNoMasterKey
	}
	if err := s.signer.Unlock(s.masterKeyEncrypted, s.cipher); err != nil {
		return err
	}
	if err := s.controls.SetWalletUnlocked(ctx, true); err != nil {
		return err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      "master_wallet_unlocked",
		EntityType:  "wallet_controls",
	})
	s.log.Info("master wallet unlocked", zap.String("admin_id", adminID.String()))
	return nil
}

// ResumeUnlock restores the in-process signer after a restart when the
// persisted flag says the wallet was left unlocked. No audit entry since no
// operator acted.
func (s *AdminService) ResumeUnlock(ctx context.Context) error {
	ctrl, err := s.controls.Get(ctx)
	if err != nil {
		return err
	}
	if !ctrl.WalletUnlocked {
		return nil
	}
	if s.masterKeyEncrypted == "" {
		return ErrNoMasterKey
	}
	if err := s.signer.Unlock(s.masterKeyEncrypted, s.cipher); err != nil {
		return err
	}
	s.log.Info("master wallet unlock resumed from persisted state")
	return nil
}

// LockMaster wipes the in-memory key and clears the persisted flag.
func (s *AdminService) LockMaster(ctx context.Context, adminID uuid.UUID) error {
	s.signer.Lock()
	if err := s.controls.SetWalletUnlocked(ctx, false); err != nil {
		return err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      "master_wallet_locked",
		EntityType:  "wallet_controls",
	})
	s.log.Info("master wallet locked", zap.String("admin_id", adminID.String()))
	return nil
}

// SetEmergency halts deposits, withdrawals and sweeps at once. Engaging
// it also locks the master wallet.
func (s *AdminService) SetEmergency(ctx context.Context, adminID uuid.UUID, on bool) error {
	if on {
		s.signer.Lock()
		if err := s.controls.SetWalletUnlocked(ctx, false); err != nil {
			return err
		}
	}
	if err := s.controls.SetEmergencyMode(ctx, on); err != nil {
		return err
	}

	action := "emergency_mode_disengaged"
	if on {
		action = "emergency_mode_engaged"
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      action,
		EntityType:  "wallet_controls",
	})
	s.log.Warn("emergency mode changed",
		zap.Bool("engaged", on),
		zap.String("admin_id", adminID.String()),
	)
	return nil
}

func (s *AdminService) GetControls(ctx context.Context) (*models.WalletControls, error) {
	return s.controls.Get(ctx)
}

func (s *AdminService) UpdateControls(ctx context.Context, adminID uuid.UUID, u *models.ControlsUpdate) (*models.WalletControls, error) {
	ctrl, err := s.controls.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   "admin",
		Action:      "controls_updated",
		EntityType:  "wallet_controls",
		Meta:        u,
	})
	return ctrl, nil
}

func (s *AdminService) AuditTrail(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	return s.audit.List(ctx, limit, offset)
}
