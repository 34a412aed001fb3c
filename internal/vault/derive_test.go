package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

// Standard BIP39 test mnemonic; the expected address at m/44'/60'/0'/0/0
// is a widely published test vector.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveKnownVector(t *testing.T) {
	_, addr, err := DeriveKey(testMnemonic, 0)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	want := "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	if addr.Hex() != want {
		t.Errorf("address at index 0 = %s, want %s", addr.Hex(), want)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	_, a1, err := DeriveKey(testMnemonic, 7)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	_, a2, err := DeriveKey(testMnemonic, 7)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if a1 != a2 {
		t.Errorf("same index derived different addresses: %s vs %s", a1.Hex(), a2.Hex())
	}
}

func TestDeriveDistinctIndices(t *testing.T) {
	seen := make(map[string]uint32)
	for index := uint32(0); index < 20; index++ {
		_, addr, err := DeriveKey(testMnemonic, index)
		if err != nil {
			t.Fatalf("DeriveKey(%d): %v", index, err)
		}
		if prev, dup := seen[addr.Hex()]; dup {
			t.Fatalf("indices %d and %d derived the same address %s", prev, index, addr.Hex())
		}
		seen[addr.Hex()] = index
	}
}

func TestDeriveKeyMatchesAddress(t *testing.T) {
	priv, addr, err := DeriveKey(testMnemonic, 3)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if got := crypto.PubkeyToAddress(priv.PublicKey); got != addr {
		t.Errorf("private key derives %s, address says %s", got.Hex(), addr.Hex())
	}
}

func TestDeriveRejectsBadMnemonic(t *testing.T) {
	for _, m := range []string{"", "not a mnemonic", "abandon abandon abandon"} {
		if _, _, err := DeriveKey(m, 0); !errors.Is(err, ErrBadMnemonic) {
			t.Errorf("DeriveKey(%q): err = %v, want ErrBadMnemonic", m, err)
		}
	}
}
