package breach

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthops/constitution/internal/domain"
)

func shortPut(strike string) domain.Position {
	return domain.Position{
		Symbol:      "SPY",
		Strike:      decimal.RequireFromString(strike),
		Expiration:  time.Date(2026, 3, 20, 21, 0, 0, 0, time.UTC),
		Right:       domain.RightPut,
		Quantity:    -1,
		EntryCredit: decimal.RequireFromString("2.50"),
		Greeks:      domain.Greeks{Delta: -0.30},
	}
}

func snapshot(price, atr string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Symbol:    "SPY",
		Price:     decimal.RequireFromString(price),
		ATR5:      decimal.RequireFromString(atr),
		VIX:       decimal.RequireFromString("18.5"),
		Timestamp: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
	}
}

func TestEvaluate_PutBreachMultiple(t *testing.T) {
	tests := []struct {
		name      string
		strike    string
		price     string
		atr       string
		trigger   string
		multiple  string
		triggered bool
	}{
		{"spot well above strike", "480", "500", "4", "1.0", "-5", false},
		{"one ATR through strike", "500", "496", "4", "1.0", "1", true},
		{"exactly at trigger", "500", "494", "4", "1.5", "1.5", true},
		{"just under trigger", "500", "494.01", "4", "1.5", "1.4975", false},
		{"revenue tier needs deeper breach", "500", "495", "4", "1.5", "1.25", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(shortPut(tt.strike), snapshot(tt.price, tt.atr), decimal.RequireFromString(tt.trigger))
			require.NoError(t, err)
			assert.True(t, res.Multiple.Equal(decimal.RequireFromString(tt.multiple)),
				"multiple = %s, want %s", res.Multiple, tt.multiple)
			assert.Equal(t, tt.triggered, res.Triggered)
		})
	}
}

func TestEvaluate_CallUsesOppositeSign(t *testing.T) {
	call := shortPut("520")
	call.Right = domain.RightCall

	res, err := Evaluate(call, snapshot("528", "4"), decimal.RequireFromString("1.0"))
	require.NoError(t, err)
	assert.True(t, res.Multiple.Equal(decimal.RequireFromString("2")))
	assert.True(t, res.Triggered)
}

func TestEvaluate_ZeroATRIsInsufficientData(t *testing.T) {
	_, err := Evaluate(shortPut("500"), snapshot("495", "0"), decimal.RequireFromString("1.0"))
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)

	_, err = Evaluate(shortPut("500"), snapshot("495", "-2"), decimal.RequireFromString("1.0"))
	require.ErrorAs(t, err, &insufficient)
}

func TestEvaluate_RejectsBadInputs(t *testing.T) {
	var contract *domain.ContractViolationError

	_, err := Evaluate(shortPut("500"), snapshot("0", "4"), decimal.RequireFromString("1.0"))
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)

	bad := shortPut("500")
	bad.Right = "STRADDLE"
	_, err = Evaluate(bad, snapshot("495", "4"), decimal.RequireFromString("1.0"))
	require.ErrorAs(t, err, &contract)

	_, err = Evaluate(shortPut("500"), snapshot("495", "4"), decimal.RequireFromString("-1"))
	require.ErrorAs(t, err, &contract)
}
