// Package vault derives deterministic per-user deposit addresses from the
// master seed and keeps their private keys encrypted at rest.
package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
)

var (
	// ErrNoCleanAddress means the bounded probe loop exhausted without
	// finding an address with zero on-chain history. Fails loudly rather
	// than silently assigning a compromised address.
	ErrNoCleanAddress = errors.New("could not derive a clean deposit address")

	ErrKeyMismatch = errors.New("decrypted key does not match stored address")
)

// ActivityProber reports whether an address has any prior on-chain
// history. Implemented by the chain client.
type ActivityProber interface {
	HasActivity(ctx context.Context, address string) (bool, error)
}

type Vault struct {
	mnemonic         string
	cipher           *Cipher
	addresses        *repositories.AddressRepo
	prober           ActivityProber
	network          string
	maxProbeAttempts int
	log              *zap.Logger
}

func New(
	mnemonic string,
	cipher *Cipher,
	addresses *repositories.AddressRepo,
	prober ActivityProber,
	network string,
	maxProbeAttempts int,
	log *zap.Logger,
) (*Vault, error) {
	if mnemonic == "" {
		return nil, ErrBadMnemonic
	}
	// Fail at construction, not on the first assignment request.
	if _, _, err := DeriveKey(mnemonic, 0); err != nil {
		return nil, err
	}
	if maxProbeAttempts <= 0 {
		maxProbeAttempts = 50
	}
	return &Vault{
		mnemonic:         mnemonic,
		cipher:           cipher,
		addresses:        addresses,
		prober:           prober,
		network:          network,
		maxProbeAttempts: maxProbeAttempts,
		log:              log,
	}, nil
}

// AssignDepositAddress returns the user's lifetime deposit address,
// creating one on first request. Each candidate index is reserved through
// the atomic counter, derived, and probed for prior on-chain history; a
// dirty address burns its index and the loop retries with the next one.
func (v *Vault) AssignDepositAddress(ctx context.Context, userID uuid.UUID) (*models.DepositAddress, error) {
	existing, err := v.addresses.GetByUser(ctx, userID, v.network)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("lookup deposit address: %w", err)
	}

	for attempt := 0; attempt < v.maxProbeAttempts; attempt++ {
		index, err := v.addresses.NextIndex(ctx)
		if err != nil {
			return nil, fmt.Errorf("reserve derivation index: %w", err)
		}

		priv, addr, err := DeriveKey(v.mnemonic, index)
		if err != nil {
			return nil, fmt.Errorf("derive index %d: %w", index, err)
		}

		dirty, err := v.prober.HasActivity(ctx, addr.Hex())
		if err != nil {
			return nil, fmt.Errorf("probe address %s: %w", addr.Hex(), err)
		}
		if dirty {
			v.log.Warn("derived address has prior history, discarding",
				zap.Uint32("index", index),
				zap.String("address", addr.Hex()),
			)
			continue
		}

		encKey, err := v.cipher.Encrypt(crypto.FromECDSA(priv))
		if err != nil {
			return nil, fmt.Errorf("encrypt private key: %w", err)
		}

		da := &models.DepositAddress{
			UserID:              userID,
			Network:             v.network,
			Address:             addr.Hex(),
			DerivationIndex:     index,
			EncryptedPrivateKey: encKey,
		}
		if err := v.addresses.Create(ctx, da); err != nil {
			// Concurrent request for the same user won the race; their
			// address is the lifetime one.
			if errors.Is(err, repositories.ErrAlreadyExists) {
				return v.addresses.GetByUser(ctx, userID, v.network)
			}
			return nil, fmt.Errorf("persist deposit address: %w", err)
		}

		v.log.Info("deposit address assigned",
			zap.String("user_id", userID.String()),
			zap.Uint32("index", index),
			zap.String("address", addr.Hex()),
		)
		return da, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrNoCleanAddress, v.maxProbeAttempts)
}

// GetDepositAddress looks up the user's address without assigning one.
func (v *Vault) GetDepositAddress(ctx context.Context, userID uuid.UUID) (*models.DepositAddress, error) {
	return v.addresses.GetByUser(ctx, userID, v.network)
}

// DecryptKey recovers the private key for a deposit address and verifies
// it actually derives the stored address before handing it out.
func (v *Vault) DecryptKey(da *models.DepositAddress) (*ecdsa.PrivateKey, error) {
	raw, err := v.cipher.Decrypt(da.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse decrypted key: %w", err)
	}
	if crypto.PubkeyToAddress(priv.PublicKey).Hex() != da.Address {
		return nil, ErrKeyMismatch
	}
	return priv, nil
}
