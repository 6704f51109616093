package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDerivePaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(dec("100"), dec("100")))
	assert.Equal(t, PaymentStatusOverpaid, DerivePaymentStatus(dec("100"), dec("130")))
	assert.Equal(t, PaymentStatusUnderpaid, DerivePaymentStatus(dec("100"), dec("80")))
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(dec("100.50"), dec("100.5")))
}

func TestApplyPaymentDeltaOverpaymentCancelsUnderpaidFirst(t *testing.T) {
	// Customer owes 20; pays 30 over on the next sale.
	over, under := ApplyPaymentDelta(dec("0"), dec("20"), dec("130"), dec("100"))
	assert.True(t, over.Equal(dec("10")), "overpaid = %s", over)
	assert.True(t, under.Equal(dec("0")), "underpaid = %s", under)
}

func TestApplyPaymentDeltaUnderpaymentCancelsOverpaidFirst(t *testing.T) {
	over, under := ApplyPaymentDelta(dec("15"), dec("0"), dec("60"), dec("100"))
	assert.True(t, over.Equal(dec("0")))
	assert.True(t, under.Equal(dec("25")))
}

func TestApplyPaymentDeltaExactPaymentLeavesBalances(t *testing.T) {
	over, under := ApplyPaymentDelta(dec("5"), dec("0"), dec("100"), dec("100"))
	assert.True(t, over.Equal(dec("5")))
	assert.True(t, under.Equal(dec("0")))
}

func TestApplyPaymentDeltaNeverLeavesBothPositive(t *testing.T) {
	cases := []struct {
		over, under, paid, total string
	}{
		{"0", "0", "120", "100"},
		{"0", "50", "120", "100"},
		{"0", "5", "200", "100"},
		{"30", "0", "40", "100"},
		{"100", "0", "0", "100"},
	}
	for _, tc := range cases {
		over, under := ApplyPaymentDelta(dec(tc.over), dec(tc.under), dec(tc.paid), dec(tc.total))
		assert.False(t, over.IsNegative())
		assert.False(t, under.IsNegative())
		assert.False(t, over.IsPositive() && under.IsPositive(),
			"both balances positive for case %+v: over=%s under=%s", tc, over, under)
	}
}

func TestReversePaymentDeltaMirrorsOverpaidScenario(t *testing.T) {
	// Forward: underpaid=20, sale overpaid by 30 -> over=10, under=0.
	over, under := ApplyPaymentDelta(dec("0"), dec("20"), dec("130"), dec("100"))
	require.True(t, over.Equal(dec("10")))
	require.True(t, under.Equal(dec("0")))

	// Reverse restores the pre-sale balances exactly.
	over, under = ReversePaymentDelta(over, under, dec("130"), dec("100"))
	assert.True(t, over.Equal(dec("0")), "overpaid = %s", over)
	assert.True(t, under.Equal(dec("20")), "underpaid = %s", under)
}

func TestReversePaymentDeltaMirrorsUnderpaidScenario(t *testing.T) {
	over, under := ApplyPaymentDelta(dec("15"), dec("0"), dec("60"), dec("100"))
	require.True(t, under.Equal(dec("25")))

	over, under = ReversePaymentDelta(over, under, dec("60"), dec("100"))
	assert.True(t, over.Equal(dec("15")))
	assert.True(t, under.Equal(dec("0")))
}

func TestReversePaymentDeltaExactPaymentIsNoop(t *testing.T) {
	over, under := ReversePaymentDelta(dec("7"), dec("0"), dec("100"), dec("100"))
	assert.True(t, over.Equal(dec("7")))
	assert.True(t, under.Equal(dec("0")))
}

func TestApplyThenReverseRoundTrips(t *testing.T) {
	cases := []struct {
		over, under, paid, total string
	}{
		{"0", "0", "150", "100"},
		{"0", "0", "70", "100"},
		{"0", "40", "160", "100"},
		{"25", "0", "50", "100"},
		{"0", "12.50", "112.50", "100"},
	}
	for _, tc := range cases {
		startOver, startUnder := dec(tc.over), dec(tc.under)
		over, under := ApplyPaymentDelta(startOver, startUnder, dec(tc.paid), dec(tc.total))
		over, under = ReversePaymentDelta(over, under, dec(tc.paid), dec(tc.total))
		assert.True(t, over.Equal(startOver), "case %+v overpaid: got %s want %s", tc, over, startOver)
		assert.True(t, under.Equal(startUnder), "case %+v underpaid: got %s want %s", tc, under, startUnder)
	}
}
