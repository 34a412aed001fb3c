// Package chain wraps JSON-RPC access to the EVM chain: endpoint failover
// with rate-limit rotation, ERC-20 reads and transfers, native gas
// transfers, and the master wallet signer.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoEndpoints = errors.New("no RPC endpoints available")
	ErrTxNotFound  = errors.New("transaction not found")

	// ErrOutcomeUnknown means a broadcast transaction was not seen mined
	// within the wait window. Not a failure: the caller leaves the
	// operation in a pending-style status for the next cycle to reconcile.
	ErrOutcomeUnknown = errors.New("transaction outcome unknown")
)

const (
	nativeTransferGas = 21000
	tokenTransferGas  = 100000

	receiptPollInterval = 3 * time.Second
)

type Client struct {
	endpoints []string
	clients   []*ethclient.Client
	mu        sync.Mutex
	current   int

	retry    RetryPolicy
	token    common.Address
	decimals int
	chainID  *big.Int
	explorer *ExplorerClient // optional, preferred for transfer discovery
	log      *zap.Logger
}

// Dial connects to every endpoint in the prioritized fallback list.
// Endpoints that fail to dial are skipped; at least one must succeed.
func Dial(
	ctx context.Context,
	endpoints []string,
	tokenAddress string,
	tokenDecimals int,
	chainID int64,
	explorer *ExplorerClient,
	retry RetryPolicy,
	log *zap.Logger,
) (*Client, error) {
	if err := ValidateAddress(tokenAddress); err != nil {
		return nil, fmt.Errorf("token contract: %w", err)
	}

	var alive []string
	var clients []*ethclient.Client
	for _, url := range endpoints {
		cl, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn("rpc endpoint unavailable", zap.String("endpoint", url), zap.Error(err))
			continue
		}
		alive = append(alive, url)
		clients = append(clients, cl)
	}
	if len(clients) == 0 {
		return nil, ErrNoEndpoints
	}

	log.Info("chain client connected",
		zap.Int("endpoints", len(clients)),
		zap.String("token", tokenAddress),
		zap.Int64("chain_id", chainID),
	)

	return &Client{
		endpoints: alive,
		clients:   clients,
		retry:     retry,
		token:     common.HexToAddress(tokenAddress),
		decimals:  tokenDecimals,
		chainID:   big.NewInt(chainID),
		explorer:  explorer,
		log:       log,
	}, nil
}

func (c *Client) Close() {
	for _, cl := range c.clients {
		cl.Close()
	}
}

func (c *Client) TokenDecimals() int { return c.decimals }

func (c *Client) active() *ethclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients[c.current]
}

func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clients) < 2 {
		return
	}
	c.current = (c.current + 1) % len(c.clients)
	c.log.Warn("rotating rpc endpoint", zap.String("endpoint", c.endpoints[c.current]))
}

// call runs fn against the active endpoint under the retry policy,
// rotating to the next endpoint when the provider rate-limits us.
func (c *Client) call(ctx context.Context, fn func(*ethclient.Client) error) error {
	return c.retry.Do(ctx, func() error {
		err := fn(c.active())
		if err != nil && IsRateLimited(err) {
			c.rotate()
		}
		return err
	})
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		head, err = cl.BlockNumber(ctx)
		return err
	})
	return head, err
}

func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		balance, err = cl.BalanceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	return balance, err
}

func (c *Client) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	data, err := PackBalanceOf(common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, err
	}
	var out []byte
	err = c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		out, err = cl.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := UnpackBalance(out)
	if err != nil {
		return decimal.Zero, err
	}
	return FromBaseUnits(balance, c.decimals), nil
}

// TokenBalanceRaw returns the balance in base units, for sweep transfers
// that must move the exact on-chain amount.
func (c *Client) TokenBalanceRaw(ctx context.Context, address string) (*big.Int, error) {
	data, err := PackBalanceOf(common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	var out []byte
	err = c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		out, err = cl.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return UnpackBalance(out)
}

// TxConfirmations returns how many blocks are on top of the transaction's
// block (inclusive) and whether it executed successfully. ErrTxNotFound
// means the node has not seen it mined yet.
func (c *Client) TxConfirmations(ctx context.Context, txHash string) (uint64, bool, error) {
	var receipt *types.Receipt
	err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		receipt, err = cl.TransactionReceipt(ctx, common.HexToHash(txHash))
		if errors.Is(err, ethereum.NotFound) {
			return nil // not retryable, handled below
		}
		return err
	})
	if err != nil {
		return 0, false, err
	}
	if receipt == nil {
		return 0, false, ErrTxNotFound
	}

	head, err := c.BlockNumber(ctx)
	if err != nil {
		return 0, false, err
	}
	block := receipt.BlockNumber.Uint64()
	if head < block {
		return 0, receipt.Status == types.ReceiptStatusSuccessful, nil
	}
	return head - block + 1, receipt.Status == types.ReceiptStatusSuccessful, nil
}

// TokenTransfersTo lists inbound token transfers to address within the
// block range. The explorer API is preferred when configured, with raw
// RPC event filtering as the fallback.
func (c *Client) TokenTransfersTo(ctx context.Context, address string, fromBlock, toBlock uint64) ([]TokenTransfer, error) {
	if c.explorer != nil {
		transfers, err := c.explorer.TokenTransfers(ctx, address, c.token.Hex(), fromBlock, toBlock)
		if err == nil {
			return inboundOnly(transfers, address), nil
		}
		c.log.Warn("explorer transfer lookup failed, falling back to log filter",
			zap.String("address", address), zap.Error(err))
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.token},
		Topics: [][]common.Hash{
			{transferEventSig},
			nil, // any sender
			{addressTopic(common.HexToAddress(address))},
		},
	}

	var logs []types.Log
	err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		logs, err = cl.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("filter transfer logs: %w", err)
	}

	transfers := make([]TokenTransfer, 0, len(logs))
	for _, lg := range logs {
		if t, ok := ParseTransferLog(lg); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}

func inboundOnly(transfers []TokenTransfer, address string) []TokenTransfer {
	to := common.HexToAddress(address)
	out := transfers[:0]
	for _, t := range transfers {
		if common.HexToAddress(t.To) == to {
			out = append(out, t)
		}
	}
	return out
}

// HasActivity reports whether an address has any on-chain history. Used
// by the vault to guarantee freshly assigned deposit addresses are clean.
func (c *Client) HasActivity(ctx context.Context, address string) (bool, error) {
	if c.explorer != nil {
		seen, err := c.explorer.HasHistory(ctx, address)
		if err == nil {
			return seen, nil
		}
		c.log.Warn("explorer history probe failed, falling back to state probe",
			zap.String("address", address), zap.Error(err))
	}

	addr := common.HexToAddress(address)
	var nonce uint64
	err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		nonce, err = cl.NonceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return false, err
	}
	if nonce > 0 {
		return true, nil
	}

	native, err := c.NativeBalance(ctx, address)
	if err != nil {
		return false, err
	}
	if native.Sign() > 0 {
		return true, nil
	}

	token, err := c.TokenBalanceRaw(ctx, address)
	if err != nil {
		return false, err
	}
	return token.Sign() > 0, nil
}

// SendToken broadcasts a signed token transfer to the destination.
func (c *Client) SendToken(ctx context.Context, key *ecdsa.PrivateKey, to string, value *big.Int) (string, error) {
	data, err := PackTransfer(common.HexToAddress(to), value)
	if err != nil {
		return "", err
	}
	return c.sendSigned(ctx, key, c.token, big.NewInt(0), tokenTransferGas, data)
}

// SendNative broadcasts a native-gas transfer, used to fund deposit
// addresses with just enough gas to sweep.
func (c *Client) SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, value *big.Int) (string, error) {
	return c.sendSigned(ctx, key, common.HexToAddress(to), value, nativeTransferGas, nil)
}

func (c *Client) sendSigned(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	to common.Address,
	value *big.Int,
	gasLimit uint64,
	data []byte,
) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	var nonce uint64
	if err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		nonce, err = cl.PendingNonceAt(ctx, from)
		return err
	}); err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	var gasPrice *big.Int
	if err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		gasPrice, err = cl.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.call(ctx, func(cl *ethclient.Client) error {
		return cl.SendTransaction(ctx, signed)
	}); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// EstimateSweepGasCost is the native balance a deposit address needs to
// cover one token transfer at current gas prices.
func (c *Client) EstimateSweepGasCost(ctx context.Context) (*big.Int, error) {
	var gasPrice *big.Int
	if err := c.call(ctx, func(cl *ethclient.Client) error {
		var err error
		gasPrice, err = cl.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return new(big.Int).Mul(gasPrice, big.NewInt(tokenTransferGas)), nil
}

// WaitMined polls for the receipt until the timeout. A timeout is an
// unknown outcome, not a failure.
func (c *Client) WaitMined(ctx context.Context, txHash string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		confirmations, ok, err := c.TxConfirmations(ctx, txHash)
		if err == nil && confirmations > 0 {
			return ok, nil
		}
		if err != nil && !errors.Is(err, ErrTxNotFound) && !IsTransient(err) {
			return false, err
		}
		if time.Now().After(deadline) {
			return false, fmt.Errorf("%w: %s", ErrOutcomeUnknown, txHash)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}
