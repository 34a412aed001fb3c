package vault

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKeyHex)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	plaintext := []byte("not-a-real-private-key-but-32-bb")
	encoded, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := c.Decrypt(encoded)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, _ := NewCipher(testKeyHex)
	a, _ := c.Encrypt([]byte("same plaintext"))
	b, _ := c.Encrypt([]byte("same plaintext"))
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	c, _ := NewCipher(testKeyHex)
	encoded, _ := c.Encrypt([]byte("secret"))

	raw, _ := hex.DecodeString(encoded)
	raw[len(raw)-1] ^= 0x01
	_, err := c.Decrypt(hex.EncodeToString(raw))
	if !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("err = %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, _ := NewCipher(testKeyHex)
	c2, _ := NewCipher(strings.Repeat("ff", 32))

	encoded, _ := c1.Encrypt([]byte("secret"))
	if _, err := c2.Decrypt(encoded); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("err = %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptGarbageFails(t *testing.T) {
	c, _ := NewCipher(testKeyHex)
	for _, in := range []string{"", "zz", "deadbeef"} {
		if _, err := c.Decrypt(in); !errors.Is(err, ErrDecryptFailed) {
			t.Errorf("Decrypt(%q): err = %v, want ErrDecryptFailed", in, err)
		}
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	for _, keyHex := range []string{"", "abcd", "not-hex", strings.Repeat("00", 16)} {
		if _, err := NewCipher(keyHex); !errors.Is(err, ErrBadEncryptionKey) {
			t.Errorf("NewCipher(%q): err = %v, want ErrBadEncryptionKey", keyHex, err)
		}
	}
}
