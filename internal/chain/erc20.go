package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// minimal ERC-20 surface: what the custody flow actually calls
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var (
	erc20ABI          abi.ABI
	transferEventSig  common.Hash
	transferEventName = "Transfer"
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	erc20ABI = parsed
	transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
}

// PackTransfer builds transfer(to, value) calldata.
func PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, value)
}

// PackBalanceOf builds balanceOf(owner) calldata.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

// UnpackBalance decodes a balanceOf return value.
func UnpackBalance(data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return balance, nil
}

// TokenTransfer is one token movement, in base units.
type TokenTransfer struct {
	TxHash      string
	From        string
	To          string
	Value       *big.Int
	BlockNumber uint64
}

// addressTopic left-pads an address to the 32-byte form indexed event
// topics use.
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

// ParseTransferLog decodes a Transfer event log. Returns false for logs
// that are not well-formed Transfer events.
func ParseTransferLog(lg types.Log) (TokenTransfer, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferEventSig {
		return TokenTransfer{}, false
	}
	out, err := erc20ABI.Unpack(transferEventName, lg.Data)
	if err != nil || len(out) != 1 {
		return TokenTransfer{}, false
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return TokenTransfer{}, false
	}
	return TokenTransfer{
		TxHash:      lg.TxHash.Hex(),
		From:        common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Value:       value,
		BlockNumber: lg.BlockNumber,
	}, true
}

// ToBaseUnits converts a decimal token amount to on-chain base units.
func ToBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromBaseUnits converts on-chain base units to a decimal token amount.
func FromBaseUnits(value *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(value, 0).Shift(-int32(decimals))
}

// ErrInvalidAddress is wrapped by every ValidateAddress failure.
var ErrInvalidAddress = errors.New("invalid address")

// ValidateAddress checks an address is well-formed for the chain, and for
// mixed-case input enforces the EIP-55 checksum.
func ValidateAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: malformed %q", ErrInvalidAddress, addr)
	}
	stripped := strings.TrimPrefix(addr, "0x")
	if stripped == strings.ToLower(stripped) || stripped == strings.ToUpper(stripped) {
		return nil // no checksum information present
	}
	if common.HexToAddress(addr).Hex() != "0x"+stripped {
		return fmt.Errorf("%w: %q fails EIP-55 checksum", ErrInvalidAddress, addr)
	}
	return nil
}
