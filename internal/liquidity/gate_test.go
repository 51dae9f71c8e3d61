package liquidity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthops/constitution/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func liquidQuote() ContractQuote {
	return ContractQuote{
		Symbol:         "SPY",
		OpenInterest:   2000,
		AvgDailyVolume: d("500"),
		Bid:            d("2.45"),
		Ask:            d("2.55"),
	}
}

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(DefaultThresholds())
	require.NoError(t, err)
	return g
}

func TestAdmit_Passes(t *testing.T) {
	g := newGate(t)

	// Spread is 0.10 on a 2.50 mid, exactly 4% of mid.
	res, err := g.Admit("ord-1", liquidQuote(), d("10"))
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Empty(t, res.Violations)
}

func TestAdmit_IndividualChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ContractQuote)
		size   string
		code   string
	}{
		{"thin open interest", func(q *ContractQuote) { q.OpenInterest = 499 }, "10", "open_interest_below_minimum"},
		{"thin volume", func(q *ContractQuote) { q.AvgDailyVolume = d("99") }, "5", "volume_below_minimum"},
		{"wide spread", func(q *ContractQuote) { q.Bid, q.Ask = d("2.30"), d("2.70") }, "10", "spread_too_wide"},
		{"oversized order", func(q *ContractQuote) {}, "51", "order_size_too_large"},
	}

	g := newGate(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := liquidQuote()
			tt.mutate(&q)
			res, err := g.Admit("ord-1", q, d(tt.size))
			require.NoError(t, err)
			assert.False(t, res.Admitted)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, tt.code, res.Violations[0].Code)
		})
	}
}

func TestAdmit_BoundaryValues(t *testing.T) {
	g := newGate(t)

	// Exactly at every threshold still admits: OI 500, ADV 100, spread 5% of
	// mid, order 10% of ADV.
	q := ContractQuote{
		Symbol:         "SPY",
		OpenInterest:   500,
		AvgDailyVolume: d("100"),
		Bid:            d("1.95"),
		Ask:            d("2.05"), // spread 0.10 on mid 2.00 = 5%
	}
	res, err := g.Admit("ord-1", q, d("10"))
	require.NoError(t, err)
	assert.True(t, res.Admitted, "violations: %v", res.Violations.Descriptions())
}

func TestAdmit_AllViolationsReportedTogether(t *testing.T) {
	g := newGate(t)

	q := ContractQuote{
		Symbol:         "XYZ",
		OpenInterest:   50,
		AvgDailyVolume: d("40"),
		Bid:            d("0.90"),
		Ask:            d("1.10"),
	}
	res, err := g.Admit("ord-1", q, d("20"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Len(t, res.Violations, 4, "no short-circuit: %v", res.Violations.Descriptions())
}

func TestAdmit_Idempotent(t *testing.T) {
	g := newGate(t)
	q := liquidQuote()
	q.OpenInterest = 100

	first, err := g.Admit("ord-1", q, d("10"))
	require.NoError(t, err)
	second, err := g.Admit("ord-1", q, d("10"))
	require.NoError(t, err)
	assert.Equal(t, first.Admitted, second.Admitted)
	assert.Equal(t, first.Violations, second.Violations)
}

func TestAdmit_BadInputs(t *testing.T) {
	g := newGate(t)

	var insufficient *domain.InsufficientDataError
	q := liquidQuote()
	q.Ask = decimal.Zero
	_, err := g.Admit("ord-1", q, d("10"))
	require.ErrorAs(t, err, &insufficient)

	q = liquidQuote()
	q.Bid, q.Ask = d("3"), d("2")
	_, err = g.Admit("ord-1", q, d("10"))
	require.ErrorAs(t, err, &insufficient)

	var contract *domain.ContractViolationError
	_, err = g.Admit("ord-1", liquidQuote(), decimal.Zero)
	require.ErrorAs(t, err, &contract)
}

func TestNewGate_RejectsBadThresholds(t *testing.T) {
	bad := DefaultThresholds()
	bad.MinOpenInterest = 0
	_, err := NewGate(bad)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
