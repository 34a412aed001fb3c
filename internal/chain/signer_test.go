package chain

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

// plainDecrypter treats the stored form as hex plaintext, standing in for
// the vault cipher in tests.
type plainDecrypter struct{}

func (plainDecrypter) Decrypt(encoded string) ([]byte, error) {
	return hex.DecodeString(encoded)
}

type failingDecrypter struct{ err error }

func (d failingDecrypter) Decrypt(string) ([]byte, error) { return nil, d.err }

func TestMasterSignerUnlockLockCycle(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	s, err := NewMasterSigner(addr.Hex())
	if err != nil {
		t.Fatalf("NewMasterSigner: %v", err)
	}

	if s.Unlocked() {
		t.Error("signer should start locked")
	}
	if _, err := s.Key(); !errors.Is(err, ErrWalletLocked) {
		t.Errorf("Key on locked signer: err = %v, want ErrWalletLocked", err)
	}

	encoded := hex.EncodeToString(crypto.FromECDSA(key))
	if err := s.Unlock(encoded, plainDecrypter{}); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !s.Unlocked() {
		t.Error("signer should be unlocked")
	}
	got, err := s.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if crypto.PubkeyToAddress(got.PublicKey) != addr {
		t.Error("unlocked key derives wrong address")
	}

	s.Lock()
	if s.Unlocked() {
		t.Error("signer should be locked after Lock")
	}
}

func TestMasterSignerRejectsWrongKey(t *testing.T) {
	expected, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()

	s, err := NewMasterSigner(crypto.PubkeyToAddress(expected.PublicKey).Hex())
	if err != nil {
		t.Fatalf("NewMasterSigner: %v", err)
	}

	encoded := hex.EncodeToString(crypto.FromECDSA(other))
	if err := s.Unlock(encoded, plainDecrypter{}); !errors.Is(err, ErrMasterKeyMismatch) {
		t.Fatalf("err = %v, want ErrMasterKeyMismatch", err)
	}
	if s.Unlocked() {
		t.Error("signer must stay locked after a mismatched unlock")
	}
}

func TestMasterSignerUnlockPropagatesDecryptFailure(t *testing.T) {
	key, _ := crypto.GenerateKey()
	s, _ := NewMasterSigner(crypto.PubkeyToAddress(key.PublicKey).Hex())

	bad := errors.New("bad authentication tag")
	if err := s.Unlock("whatever", failingDecrypter{err: bad}); !errors.Is(err, bad) {
		t.Fatalf("err = %v, want wrapped decrypt error", err)
	}
	if s.Unlocked() {
		t.Error("signer must stay locked after a failed decrypt")
	}
}

func TestNewMasterSignerRejectsBadAddress(t *testing.T) {
	if _, err := NewMasterSigner("not-an-address"); err == nil {
		t.Error("expected error for malformed master address")
	}
}
