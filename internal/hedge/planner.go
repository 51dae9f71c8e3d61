// Package hedge computes hedge budgets and deployment plans for sleeves in
// recovery or preservation. Allocation percentages are fixed by the
// Constitution: 1% of sleeve equity to index puts, 0.5% to volatility calls.
package hedge

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/protocol"
)

var (
	spxPutPct    = decimal.RequireFromString("0.01")
	vixCallPct   = decimal.RequireFromString("0.005")
	gainsPct     = decimal.RequireFromString("0.075") // mean of the 5-10% quarterly-gains band
	spxStrikeMul = decimal.RequireFromString("0.90")  // 10% OTM
	vixStrikeAdd = decimal.RequireFromString("5.0")
)

// BudgetSource names which leg of the max() decided the budget.
type BudgetSource string

const (
	BudgetFromQuarterlyGains BudgetSource = "quarterly_gains"
	BudgetFromSleeveEquity   BudgetSource = "sleeve_equity_floor"
)

// Allocation is the derived hedge budget, computed fresh each time a sleeve
// enters L2. Scale-invariant in sleeve equity.
type Allocation struct {
	SPXPuts      decimal.Decimal `json:"spx_puts"`
	VIXCalls     decimal.Decimal `json:"vix_calls"`
	TotalBudget  decimal.Decimal `json:"total_budget"`
	BudgetSource BudgetSource    `json:"budget_source"`
}

// DeploymentPlan is an Allocation plus target strikes and the atomic
// approve/reject decision. A rejected plan carries explicit violations and is
// never silently trimmed to fit.
type DeploymentPlan struct {
	Sleeve        domain.SleeveID     `json:"sleeve"`
	Level         protocol.Level      `json:"level"`
	Allocation    Allocation          `json:"allocation"`
	SPXPutStrike  decimal.Decimal     `json:"spx_put_strike"`
	VIXCallStrike decimal.Decimal     `json:"vix_call_strike"`
	Approved      bool                `json:"deployment_approved"`
	Violations    domain.ViolationSet `json:"violations,omitempty"`
}

// CalculateAllocation derives the hedge budget from sleeve equity and
// quarterly gains. The budget is max(7.5% of quarterly gains, 1% of sleeve
// equity) when gains are positive, and the 1% equity floor otherwise; it is
// never below the equity floor.
func CalculateAllocation(sleeveEquity, quarterlyGains decimal.Decimal) (Allocation, error) {
	if !sleeveEquity.IsPositive() {
		return Allocation{}, &domain.ContractViolationError{
			Field:  "sleeve_equity",
			Reason: fmt.Sprintf("must be positive, got %s", sleeveEquity),
		}
	}

	spxPuts := sleeveEquity.Mul(spxPutPct)
	vixCalls := sleeveEquity.Mul(vixCallPct)

	budget := spxPuts
	source := BudgetFromSleeveEquity
	if quarterlyGains.IsPositive() {
		fromGains := quarterlyGains.Mul(gainsPct)
		if fromGains.GreaterThan(budget) {
			budget = fromGains
			source = BudgetFromQuarterlyGains
		}
	}

	return Allocation{
		SPXPuts:      spxPuts,
		VIXCalls:     vixCalls,
		TotalBudget:  budget,
		BudgetSource: source,
	}, nil
}

// Planner builds deployment plans. It holds no mutable state; each plan is a
// pure function of its inputs.
type Planner struct{}

// NewPlanner returns a hedge planner.
func NewPlanner() *Planner { return &Planner{} }

// CreateDeploymentPlan computes the allocation, target strikes, and the
// approval decision. Approval requires protocol level >= L2 and total hedge
// cost within available capital; every unmet requirement is reported.
func (p *Planner) CreateDeploymentPlan(
	sleeve domain.SleeveID,
	level protocol.Level,
	sleeveEquity, quarterlyGains, vix, spxPrice, availableCapital decimal.Decimal,
) (DeploymentPlan, error) {
	if !spxPrice.IsPositive() {
		return DeploymentPlan{}, &domain.InsufficientDataError{
			Source: "market_snapshot",
			Reason: fmt.Sprintf("SPX price must be positive, got %s", spxPrice),
		}
	}
	if vix.IsNegative() {
		return DeploymentPlan{}, &domain.InsufficientDataError{
			Source: "market_snapshot",
			Reason: fmt.Sprintf("VIX must be non-negative, got %s", vix),
		}
	}

	alloc, err := CalculateAllocation(sleeveEquity, quarterlyGains)
	if err != nil {
		return DeploymentPlan{}, err
	}

	plan := DeploymentPlan{
		Sleeve:        sleeve,
		Level:         level,
		Allocation:    alloc,
		SPXPutStrike:  spxPrice.Mul(spxStrikeMul),
		VIXCallStrike: vix.Add(vixStrikeAdd),
	}

	if level < protocol.L2Recovery {
		plan.Violations = append(plan.Violations, domain.Violation{
			Code:        "protocol_level_below_l2",
			Measured:    level.String(),
			Threshold:   protocol.L2Recovery.String(),
			Description: fmt.Sprintf("hedge deployment requires %s or above, sleeve is at %s", protocol.L2Recovery, level),
		})
	}

	totalCost := alloc.SPXPuts.Add(alloc.VIXCalls)
	if totalCost.GreaterThan(availableCapital) {
		plan.Violations = append(plan.Violations, domain.Violation{
			Code:        "insufficient_capital",
			Measured:    totalCost.String(),
			Threshold:   availableCapital.String(),
			Description: fmt.Sprintf("hedge cost %s exceeds available capital %s", totalCost, availableCapital),
		})
	}

	plan.Approved = len(plan.Violations) == 0
	return plan, nil
}
