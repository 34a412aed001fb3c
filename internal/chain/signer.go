package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrWalletLocked = errors.New("master wallet is locked")

	// ErrMasterKeyMismatch means the decrypted key does not derive the
	// configured master address. Signing with the wrong key would send
	// funds from an unexpected account, so unlock refuses it outright.
	ErrMasterKeyMismatch = errors.New("decrypted key does not match master wallet address")
)

// Decrypter recovers plaintext key material from its at-rest encrypted
// form. Implemented by vault.Cipher.
type Decrypter interface {
	Decrypt(encoded string) ([]byte, error)
}

// MasterSigner holds the master wallet's signing key in memory, gated by
// explicit lock/unlock admin actions. The key never leaves the process
// and is never persisted; after a restart it must be unlocked again
// (the persisted intent flag in wallet controls drives that).
type MasterSigner struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewMasterSigner creates a locked signer for the expected master address.
func NewMasterSigner(masterAddress string) (*MasterSigner, error) {
	if err := ValidateAddress(masterAddress); err != nil {
		return nil, fmt.Errorf("master wallet address: %w", err)
	}
	return &MasterSigner{address: common.HexToAddress(masterAddress)}, nil
}

func (s *MasterSigner) Address() string {
	return s.address.Hex()
}

// Unlock decrypts the master key and loads it into memory. The derived
// address must match the configured master address.
func (s *MasterSigner) Unlock(encryptedKey string, dec Decrypter) error {
	raw, err := dec.Decrypt(encryptedKey)
	if err != nil {
		return fmt.Errorf("decrypt master key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return fmt.Errorf("parse master key: %w", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != s.address {
		return ErrMasterKeyMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

// Lock discards the in-memory key.
func (s *MasterSigner) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
}

func (s *MasterSigner) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Key returns the signing key, or ErrWalletLocked.
func (s *MasterSigner) Key() (*ecdsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrWalletLocked
	}
	return s.key, nil
}
