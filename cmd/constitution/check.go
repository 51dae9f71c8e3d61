package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/assignment"
	"github.com/wealthops/constitution/internal/breach"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/protocol"
	"github.com/wealthops/constitution/internal/rollcost"
)

// checkReport is the one-shot evaluation printed by `constitution check`.
type checkReport struct {
	Breach      breach.Result      `json:"breach"`
	TargetLevel string             `json:"target_level"`
	RollCost    *rollcost.Analysis `json:"roll_cost,omitempty"`
	Assignment  *assignment.Check  `json:"assignment,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	symbol, _ := cmd.Flags().GetString("symbol")
	rightFlag, _ := cmd.Flags().GetString("right")
	tierFlag, _ := cmd.Flags().GetString("tier")

	strike, err := decimalFlag(cmd, "strike")
	if err != nil {
		return err
	}
	credit, err := decimalFlag(cmd, "credit")
	if err != nil {
		return err
	}
	spot, err := decimalFlag(cmd, "spot")
	if err != nil {
		return err
	}
	atr, err := decimalFlag(cmd, "atr")
	if err != nil {
		return err
	}

	tier := account.Tier(tierFlag)
	if !tier.Valid() {
		return fmt.Errorf("unknown tier %q", tierFlag)
	}
	right := domain.OptionRight(rightFlag)

	pos := domain.Position{
		Symbol:      symbol,
		Strike:      strike,
		Right:       right,
		Quantity:    -1,
		EntryCredit: credit,
		CurrentMark: credit,
	}
	snap := domain.MarketSnapshot{
		Symbol:    symbol,
		Price:     spot,
		ATR5:      atr,
		Timestamp: time.Now(),
	}

	trigger := account.DefaultTierTable()[tier].RollTriggerATR
	breachRes, err := breach.Evaluate(pos, snap, trigger)
	if err != nil {
		return err
	}

	report := checkReport{
		Breach: breachRes,
		TargetLevel: protocol.TargetLevel(protocol.Metrics{
			ATRBreachMultiple: breachRes.Multiple,
		}).String(),
	}

	if debitFlag, _ := cmd.Flags().GetString("roll-debit"); debitFlag != "" {
		debit, err := decimal.NewFromString(debitFlag)
		if err != nil {
			return fmt.Errorf("invalid roll-debit %q: %w", debitFlag, err)
		}
		analysis, err := rollcost.Analyze(credit, debit)
		if err != nil {
			return err
		}
		report.RollCost = &analysis
	}

	if expiryFlag, _ := cmd.Flags().GetString("expiry"); expiryFlag != "" {
		expiry, err := time.Parse(time.RFC3339, expiryFlag)
		if err != nil {
			return fmt.Errorf("invalid expiry %q: %w", expiryFlag, err)
		}
		pos.Expiration = expiry
		check, err := assignment.NewEngine().EvaluatePosition(pos, snap)
		if err != nil {
			return err
		}
		report.Assignment = &check
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}
