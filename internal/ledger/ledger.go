// Package ledger defines the account ledger collaborator contract: realized
// equity and quarterly gains consumed by the hedge planner and fork engine.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Ledger supplies realized account state. Implementations live outside the
// core.
type Ledger interface {
	SleeveEquity(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error)
	QuarterlyGains(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error)
	AccountValue(ctx context.Context, accountID string) (decimal.Decimal, error)
}
