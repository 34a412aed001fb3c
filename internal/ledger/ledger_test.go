package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func balances(available, escrow string) Balances {
	return Balances{Available: dec(available), Escrow: dec(escrow)}
}

func assertBalances(t *testing.T, got Balances, available, escrow string) {
	t.Helper()
	if !got.Available.Equal(dec(available)) {
		t.Errorf("available = %s, want %s", got.Available, available)
	}
	if !got.Escrow.Equal(dec(escrow)) {
		t.Errorf("escrow = %s, want %s", got.Escrow, escrow)
	}
}

func TestHold(t *testing.T) {
	b, err := Hold(balances("100", "0"), dec("30"))
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	assertBalances(t, b, "70", "30")
}

func TestHoldInsufficientAvailable(t *testing.T) {
	orig := balances("10", "0")
	got, err := Hold(orig, dec("10.00000001"))
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Fatalf("err = %v, want ErrInsufficientAvailable", err)
	}
	// Rejected operations must not partially apply.
	assertBalances(t, got, "10", "0")
}

func TestHoldRejectsNonPositive(t *testing.T) {
	for _, amount := range []string{"0", "-5"} {
		if _, err := Hold(balances("100", "0"), dec(amount)); !errors.Is(err, ErrNonPositiveAmount) {
			t.Errorf("Hold(%s): err = %v, want ErrNonPositiveAmount", amount, err)
		}
	}
}

func TestHoldReleaseRoundTrip(t *testing.T) {
	start := balances("100", "0")

	held, err := Hold(start, dec("30"))
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	back, err := Release(held, dec("30"))
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	assertBalances(t, back, "100", "0")
}

func TestReleaseInsufficientEscrow(t *testing.T) {
	_, err := Release(balances("100", "5"), dec("30"))
	if !errors.Is(err, ErrInsufficientEscrow) {
		t.Fatalf("err = %v, want ErrInsufficientEscrow", err)
	}
}

func TestRefundReturnsFullAmount(t *testing.T) {
	b, err := Refund(balances("0", "42.5"), dec("42.5"))
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	assertBalances(t, b, "42.5", "0")
}

func TestSettleFeeSplit(t *testing.T) {
	holder := balances("70", "30")
	seller := balances("0", "0")

	holderOut, sellerOut, fee, err := Settle(holder, seller, dec("30"), MarketplaceFeeRate)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	assertBalances(t, holderOut, "70", "0")
	assertBalances(t, sellerOut, "27", "0")
	if !fee.Equal(dec("3")) {
		t.Errorf("fee = %s, want 3", fee)
	}
}

func TestSettleConservesAmount(t *testing.T) {
	// Amounts that do not divide evenly at 8 dp: the seller share is
	// rounded and the fee is the exact remainder.
	amounts := []string{"0.00000001", "1", "3.33333333", "99.99999999", "10.12345678"}
	for _, a := range amounts {
		amount := dec(a)
		holder := Balances{Available: decimal.Zero, Escrow: amount}
		_, sellerOut, fee, err := Settle(holder, Balances{}, amount, MarketplaceFeeRate)
		if err != nil {
			t.Fatalf("Settle(%s): %v", a, err)
		}
		if !sellerOut.Available.Add(fee).Equal(amount) {
			t.Errorf("Settle(%s): seller %s + fee %s != %s", a, sellerOut.Available, fee, amount)
		}
	}
}

func TestSettleInsufficientEscrow(t *testing.T) {
	_, _, _, err := Settle(balances("100", "10"), Balances{}, dec("30"), MarketplaceFeeRate)
	if !errors.Is(err, ErrInsufficientEscrow) {
		t.Fatalf("err = %v, want ErrInsufficientEscrow", err)
	}
}

func TestSettleRejectsBadFeeRate(t *testing.T) {
	for _, rate := range []string{"-0.1", "1", "1.5"} {
		_, _, _, err := Settle(balances("0", "100"), Balances{}, dec("10"), dec(rate))
		if !errors.Is(err, ErrInvalidFeeRate) {
			t.Errorf("feeRate %s: err = %v, want ErrInvalidFeeRate", rate, err)
		}
	}
}

func TestDebitEarmarksAmountPlusFee(t *testing.T) {
	// Withdrawal of 50 with fee 1 from available=200 earmarks 51.
	b, err := Debit(balances("200", "0"), dec("51"))
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	assertBalances(t, b, "149", "0")

	// Rejection refunds the net amount only; the fee stands.
	b, err = Credit(b, dec("50"))
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	assertBalances(t, b, "199", "0")
}

func TestBalancesNeverNegative(t *testing.T) {
	ops := []struct {
		name string
		run  func(Balances) (Balances, error)
	}{
		{"hold", func(b Balances) (Balances, error) { return Hold(b, dec("1000")) }},
		{"release", func(b Balances) (Balances, error) { return Release(b, dec("1000")) }},
		{"refund", func(b Balances) (Balances, error) { return Refund(b, dec("1000")) }},
		{"debit", func(b Balances) (Balances, error) { return Debit(b, dec("1000")) }},
	}

	start := balances("10", "10")
	for _, op := range ops {
		got, err := op.run(start)
		if err == nil {
			t.Errorf("%s: expected error for overdraw", op.name)
		}
		if got.Available.Sign() < 0 || got.Escrow.Sign() < 0 {
			t.Errorf("%s: produced negative balance %+v", op.name, got)
		}
	}
}
