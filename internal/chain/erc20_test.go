package chain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

func TestPackTransferCalldata(t *testing.T) {
	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	data, err := PackTransfer(to, big.NewInt(1000000))
	if err != nil {
		t.Fatalf("PackTransfer: %v", err)
	}

	// 4-byte selector for transfer(address,uint256)
	if got := hex.EncodeToString(data[:4]); got != "a9059cbb" {
		t.Errorf("selector = %s, want a9059cbb", got)
	}
	if len(data) != 4+32+32 {
		t.Errorf("calldata length = %d, want 68", len(data))
	}
	// recipient is right-padded into the first argument word
	if got := common.BytesToAddress(data[4+12 : 4+32]); got != to {
		t.Errorf("recipient = %s, want %s", got.Hex(), to.Hex())
	}
	// value in the second argument word
	if got := new(big.Int).SetBytes(data[36:68]); got.Cmp(big.NewInt(1000000)) != 0 {
		t.Errorf("value = %s, want 1000000", got)
	}
}

func TestAddressTopicPadsToWord(t *testing.T) {
	addr := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	topic := addressTopic(addr)

	for i, b := range topic.Bytes()[:12] {
		if b != 0 {
			t.Fatalf("topic byte %d = %#x, want zero padding", i, b)
		}
	}
	if got := common.BytesToAddress(topic.Bytes()); got != addr {
		t.Errorf("topic address = %s, want %s", got.Hex(), addr.Hex())
	}
}

func TestParseTransferLogRoundTrip(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(123456789)

	lg := types.Log{
		Topics: []common.Hash{
			transferEventSig,
			addressTopic(from),
			addressTopic(to),
		},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		TxHash:      common.HexToHash("0xabc123"),
		BlockNumber: 42,
	}

	transfer, ok := ParseTransferLog(lg)
	if !ok {
		t.Fatal("ParseTransferLog returned false for a valid Transfer log")
	}
	if transfer.From != from.Hex() {
		t.Errorf("from = %s, want %s", transfer.From, from.Hex())
	}
	if transfer.To != to.Hex() {
		t.Errorf("to = %s, want %s", transfer.To, to.Hex())
	}
	if transfer.Value.Cmp(value) != 0 {
		t.Errorf("value = %s, want %s", transfer.Value, value)
	}
	if transfer.BlockNumber != 42 {
		t.Errorf("block = %d, want 42", transfer.BlockNumber)
	}
}

func TestParseTransferLogRejectsForeignEvents(t *testing.T) {
	// Approval(address,address,uint256) has a different signature topic
	lg := types.Log{
		Topics: []common.Hash{
			common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"),
			addressTopic(common.HexToAddress("0x1")),
			addressTopic(common.HexToAddress("0x2")),
		},
		Data: common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
	}
	if _, ok := ParseTransferLog(lg); ok {
		t.Error("ParseTransferLog accepted a non-Transfer event")
	}

	// Transfer with missing indexed topics
	lg.Topics = []common.Hash{transferEventSig}
	if _, ok := ParseTransferLog(lg); ok {
		t.Error("ParseTransferLog accepted a Transfer log with missing topics")
	}
}

func TestBaseUnitConversion(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		base     string
	}{
		{"1", 6, "1000000"},
		{"0.000001", 6, "1"},
		{"12.345678", 6, "12345678"},
		{"1.5", 18, "1500000000000000000"},
	}
	for _, tt := range tests {
		amount, _ := decimal.NewFromString(tt.amount)
		base := ToBaseUnits(amount, tt.decimals)
		if base.String() != tt.base {
			t.Errorf("ToBaseUnits(%s, %d) = %s, want %s", tt.amount, tt.decimals, base, tt.base)
		}
		back := FromBaseUnits(base, tt.decimals)
		if !back.Equal(amount) {
			t.Errorf("FromBaseUnits round trip: got %s, want %s", back, amount)
		}
	}
}

func TestToBaseUnitsTruncatesSubUnitDust(t *testing.T) {
	amount, _ := decimal.NewFromString("0.00000012345")
	if got := ToBaseUnits(amount, 6); got.Sign() != 0 {
		t.Errorf("ToBaseUnits below one base unit = %s, want 0", got)
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},  // valid EIP-55
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},  // all lowercase, no checksum info
		{"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", true},  // all uppercase, no checksum info
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1beAed", false}, // checksum violation
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe", false},  // too short
		{"not-an-address", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateAddress(%q) err = %v, want valid=%v", tt.addr, err, tt.valid)
		}
	}
}
