package protocol

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// TransitionCause identifies why a level change happened.
type TransitionCause string

const (
	CauseBreachEscalation TransitionCause = "breach_escalation"
	CauseRecovery         TransitionCause = "recovery"
	CauseRollCostOverride TransitionCause = "roll_cost_override"
	CauseFailClosed       TransitionCause = "fail_closed"
)

// TransitionEvent is the auditable record of one level change. Every
// transition emits exactly one event; there are no silent level changes.
type TransitionEvent struct {
	ID             uuid.UUID       `json:"id"`
	Sleeve         domain.SleeveID `json:"sleeve"`
	From           Level           `json:"from"`
	To             Level           `json:"to"`
	Cause          TransitionCause `json:"cause"`
	BreachMultiple decimal.Decimal `json:"breach_multiple"`
	LossPct        decimal.Decimal `json:"loss_pct"`
	Timestamp      time.Time       `json:"timestamp"`
}
