package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExplorerClient talks to an Etherscan-compatible block explorer API.
// Explorer APIs are more reliable than raw log filters for scanning a
// single address's history, so the chain client prefers this path for
// transfer discovery when configured.
type ExplorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewExplorerClient(baseURL, apiKey string, log *zap.Logger) *ExplorerClient {
	return &ExplorerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTokenTx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
}

func (c *ExplorerClient) get(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("explorer returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	// status "0" with "No transactions found" is an empty result, not an error
	if parsed.Status != "1" && !strings.Contains(parsed.Message, "No transactions") {
		return nil, fmt.Errorf("explorer error: %s", parsed.Message)
	}
	return parsed.Result, nil
}

// TokenTransfers lists token transfers touching address for the given
// contract within [fromBlock, toBlock], oldest first.
func (c *ExplorerClient) TokenTransfers(ctx context.Context, address, contract string, fromBlock, toBlock uint64) ([]TokenTransfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", address)
	params.Set("contractaddress", contract)
	params.Set("startblock", strconv.FormatUint(fromBlock, 10))
	params.Set("endblock", strconv.FormatUint(toBlock, 10))
	params.Set("sort", "asc")

	result, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var raw []explorerTokenTx
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode explorer transfers: %w", err)
	}

	transfers := make([]TokenTransfer, 0, len(raw))
	for _, tx := range raw {
		value, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			c.log.Warn("explorer returned unparseable value",
				zap.String("tx", tx.Hash), zap.String("value", tx.Value))
			continue
		}
		block, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
		if err != nil {
			continue
		}
		transfers = append(transfers, TokenTransfer{
			TxHash:      tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Value:       value,
			BlockNumber: block,
		})
	}
	return transfers, nil
}

// HasHistory reports whether the address appears in any transaction at
// all (native or token).
func (c *ExplorerClient) HasHistory(ctx context.Context, address string) (bool, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", address)
	params.Set("page", "1")
	params.Set("offset", "1")

	result, err := c.get(ctx, params)
	if err != nil {
		return false, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil {
		return false, fmt.Errorf("decode explorer txlist: %w", err)
	}
	return len(raw) > 0, nil
}
