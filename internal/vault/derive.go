package vault

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

var ErrBadMnemonic = errors.New("vault mnemonic is missing or invalid")

// hardened offsets for the m/44'/60'/0'/0/{index} path
const (
	purposeBIP44 = hdkeychain.HardenedKeyStart + 44
	coinEther    = hdkeychain.HardenedKeyStart + 60
	accountZero  = hdkeychain.HardenedKeyStart + 0
)

// DeriveKey deterministically derives the private key and address for a
// derivation index from the mnemonic at m/44'/60'/0'/0/{index}. Pure
// function of (mnemonic, index); the same inputs always yield the same
// address, and distinct indices yield distinct addresses.
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, common.Address, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, common.Address{}, ErrBadMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("derive master key: %w", err)
	}

	path := []uint32{purposeBIP44, coinEther, accountZero, 0, index}
	key := master
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("derive step %d: %w", step, err)
		}
	}

	btcPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("extract private key: %w", err)
	}

	priv := btcPriv.ToECDSA()
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	return priv, addr, nil
}
