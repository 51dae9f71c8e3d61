// Package liquidity is the admission gate applied before any order reaches
// execution. The four checks are independent and evaluated together, so a
// rejection always carries the complete violation set.
package liquidity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Thresholds are the gate's fixed admission requirements.
type Thresholds struct {
	MinOpenInterest   int64
	MinAvgDailyVolume decimal.Decimal
	MaxSpreadPctOfMid decimal.Decimal
	MaxOrderPctOfADV  decimal.Decimal
}

// DefaultThresholds returns the Constitution v1.3 admission thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOpenInterest:   500,
		MinAvgDailyVolume: decimal.RequireFromString("100"),
		MaxSpreadPctOfMid: decimal.RequireFromString("5"),
		MaxOrderPctOfADV:  decimal.RequireFromString("10"),
	}
}

// Validate checks the thresholds at startup.
func (t Thresholds) Validate() error {
	if t.MinOpenInterest <= 0 {
		return &domain.ConfigurationError{Section: "liquidity", Reason: "min open interest must be positive"}
	}
	if !t.MinAvgDailyVolume.IsPositive() {
		return &domain.ConfigurationError{Section: "liquidity", Reason: "min average daily volume must be positive"}
	}
	if !t.MaxSpreadPctOfMid.IsPositive() {
		return &domain.ConfigurationError{Section: "liquidity", Reason: "max spread pct must be positive"}
	}
	if !t.MaxOrderPctOfADV.IsPositive() {
		return &domain.ConfigurationError{Section: "liquidity", Reason: "max order pct of ADV must be positive"}
	}
	return nil
}

// ContractQuote is the option contract's liquidity picture at admission time.
type ContractQuote struct {
	Symbol         string          `json:"symbol"`
	OpenInterest   int64           `json:"open_interest"`
	AvgDailyVolume decimal.Decimal `json:"avg_daily_volume"`
	Bid            decimal.Decimal `json:"bid"`
	Ask            decimal.Decimal `json:"ask"`
}

// Result is one admission decision. Identical inputs always produce identical
// violation sets.
type Result struct {
	OrderID    string              `json:"order_id"`
	Admitted   bool                `json:"admitted"`
	Violations domain.ViolationSet `json:"violations,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Gate validates orders against the admission thresholds.
type Gate struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewGate returns a gate over validated thresholds.
func NewGate(thresholds Thresholds) (*Gate, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Gate{thresholds: thresholds, now: time.Now}, nil
}

// Admit evaluates all four admission checks for the proposed order size
// (contracts) against the quote. Checks never short-circuit: every violated
// threshold appears in the result.
func (g *Gate) Admit(orderID string, quote ContractQuote, orderSize decimal.Decimal) (Result, error) {
	if quote.Bid.IsNegative() || !quote.Ask.IsPositive() || quote.Ask.LessThan(quote.Bid) {
		return Result{}, &domain.InsufficientDataError{
			Source: "contract_quote",
			Reason: fmt.Sprintf("unusable bid/ask %s/%s", quote.Bid, quote.Ask),
		}
	}
	if !orderSize.IsPositive() {
		return Result{}, &domain.ContractViolationError{
			Field:  "order_size",
			Reason: fmt.Sprintf("must be positive, got %s", orderSize),
		}
	}

	t := g.thresholds
	res := Result{OrderID: orderID, Timestamp: g.now()}

	if quote.OpenInterest < t.MinOpenInterest {
		res.Violations = append(res.Violations, domain.Violation{
			Code:        "open_interest_below_minimum",
			Measured:    fmt.Sprintf("%d", quote.OpenInterest),
			Threshold:   fmt.Sprintf("%d", t.MinOpenInterest),
			Description: fmt.Sprintf("open interest %d below minimum %d", quote.OpenInterest, t.MinOpenInterest),
		})
	}

	if quote.AvgDailyVolume.LessThan(t.MinAvgDailyVolume) {
		res.Violations = append(res.Violations, domain.Violation{
			Code:        "volume_below_minimum",
			Measured:    quote.AvgDailyVolume.String(),
			Threshold:   t.MinAvgDailyVolume.String(),
			Description: fmt.Sprintf("average daily volume %s below minimum %s", quote.AvgDailyVolume, t.MinAvgDailyVolume),
		})
	}

	mid := quote.Bid.Add(quote.Ask).DivRound(decimal.RequireFromString("2"), 8)
	spreadPct := quote.Ask.Sub(quote.Bid).DivRound(mid, 8).Mul(decimal.RequireFromString("100"))
	if spreadPct.GreaterThan(t.MaxSpreadPctOfMid) {
		res.Violations = append(res.Violations, domain.Violation{
			Code:        "spread_too_wide",
			Measured:    spreadPct.String(),
			Threshold:   t.MaxSpreadPctOfMid.String(),
			Description: fmt.Sprintf("bid-ask spread %s%% of mid exceeds %s%%", spreadPct, t.MaxSpreadPctOfMid),
		})
	}

	if quote.AvgDailyVolume.IsPositive() {
		sizePct := orderSize.DivRound(quote.AvgDailyVolume, 8).Mul(decimal.RequireFromString("100"))
		if sizePct.GreaterThan(t.MaxOrderPctOfADV) {
			res.Violations = append(res.Violations, domain.Violation{
				Code:        "order_size_too_large",
				Measured:    sizePct.String(),
				Threshold:   t.MaxOrderPctOfADV.String(),
				Description: fmt.Sprintf("order size %s%% of average daily volume exceeds %s%%", sizePct, t.MaxOrderPctOfADV),
			})
		}
	} else {
		// Zero ADV cannot bound the order size; reject rather than pass.
		res.Violations = append(res.Violations, domain.Violation{
			Code:        "order_size_too_large",
			Measured:    orderSize.String(),
			Threshold:   "0",
			Description: "order size unbounded against zero average daily volume",
		})
	}

	res.Admitted = len(res.Violations) == 0
	return res, nil
}
