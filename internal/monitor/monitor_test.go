package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/broker"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/hedge"
	"github.com/wealthops/constitution/internal/liquidity"
	"github.com/wealthops/constitution/internal/marketdata"
	"github.com/wealthops/constitution/internal/persistence"
	"github.com/wealthops/constitution/internal/protocol"
)

type stubPositions struct {
	positions []domain.Position
	err       error
}

func (s *stubPositions) Positions(ctx context.Context, sleeve domain.SleeveID) ([]domain.Position, error) {
	return s.positions, s.err
}

type stubLedger struct {
	equity decimal.Decimal
	gains  decimal.Decimal
}

func (s *stubLedger) SleeveEquity(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error) {
	return s.equity, nil
}

func (s *stubLedger) QuarterlyGains(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error) {
	return s.gains, nil
}

func (s *stubLedger) AccountValue(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.equity, nil
}

type recordingExecutor struct {
	mu     sync.Mutex
	hedges []broker.HedgeOrder
}

func (r *recordingExecutor) SubmitRoll(ctx context.Context, order broker.RollOrder) (<-chan broker.Ack, error) {
	return closedAck(order.OrderID), nil
}

func (r *recordingExecutor) SubmitHedge(ctx context.Context, order broker.HedgeOrder) (<-chan broker.Ack, error) {
	r.mu.Lock()
	r.hedges = append(r.hedges, order)
	r.mu.Unlock()
	return closedAck(order.OrderID), nil
}

func (r *recordingExecutor) SubmitAssignmentAction(ctx context.Context, action broker.AssignmentAction) (<-chan broker.Ack, error) {
	return closedAck(action.OrderID), nil
}

func (r *recordingExecutor) hedgeOrders() []broker.HedgeOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broker.HedgeOrder, len(r.hedges))
	copy(out, r.hedges)
	return out
}

func closedAck(orderID string) <-chan broker.Ack {
	ch := make(chan broker.Ack, 1)
	ch <- broker.Ack{OrderID: orderID, Accepted: true, Timestamp: time.Now()}
	close(ch)
	return ch
}

func testDeps(t *testing.T, feed marketdata.Feed, positions PositionSource, exec broker.Executor) Deps {
	t.Helper()
	gate, err := liquidity.NewGate(liquidity.DefaultThresholds())
	require.NoError(t, err)
	return Deps{
		Feed:      feed,
		Positions: positions,
		Ledger:    &stubLedger{equity: decimal.RequireFromString("200000")},
		Executor:  exec,
		Gate:      gate,
		Planner:   hedge.NewPlanner(),
		Journal:   persistence.NopJournal{},
	}
}

func snapshotFeed(snap domain.MarketSnapshot) marketdata.Feed {
	return marketdata.FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		return snap, nil
	})
}

func shortPut(strike, credit, mark string) domain.Position {
	return domain.Position{
		Symbol:      "XYZ",
		Strike:      decimal.RequireFromString(strike),
		Expiration:  time.Date(2026, 6, 19, 21, 0, 0, 0, time.UTC),
		Right:       domain.RightPut,
		Quantity:    -1,
		EntryCredit: decimal.RequireFromString(credit),
		CurrentMark: decimal.RequireFromString(mark),
	}
}

func TestTickEscalatesAndDeploysHedge(t *testing.T) {
	// Strike 100, spot 90, ATR 4: breach multiple 2.5 targets L2 from L0.
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("90"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("25"),
		Timestamp: time.Now(),
	}
	exec := &recordingExecutor{}
	positions := &stubPositions{positions: []domain.Position{shortPut("100", "5.00", "5.00")}}

	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), positions, exec))

	m.tick(context.Background(), time.Now())

	require.Equal(t, protocol.L2Recovery, m.machine.Current())

	select {
	case ev := <-m.Events():
		assert.Equal(t, protocol.L0Normal, ev.From)
		assert.Equal(t, protocol.L2Recovery, ev.To)
		assert.Equal(t, protocol.CauseBreachEscalation, ev.Cause)
	default:
		t.Fatal("expected a transition event")
	}

	orders := exec.hedgeOrders()
	require.Len(t, orders, 2, "both hedge legs dispatched on entering L2")
	legs := map[broker.HedgeLeg]broker.HedgeOrder{orders[0].Leg: orders[0], orders[1].Leg: orders[1]}
	assert.Contains(t, legs, broker.LegSPXPut)
	assert.Contains(t, legs, broker.LegVIXCall)
	assert.True(t, legs[broker.LegSPXPut].Budget.Equal(decimal.RequireFromString("2000")))
	assert.True(t, legs[broker.LegVIXCall].Budget.Equal(decimal.RequireFromString("1000")))
}

func TestTickNoTransitionWhenCalm(t *testing.T) {
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("110"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("14"),
		Timestamp: time.Now(),
	}
	exec := &recordingExecutor{}
	positions := &stubPositions{positions: []domain.Position{shortPut("100", "5.00", "2.00")}}

	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), positions, exec))

	m.tick(context.Background(), time.Now())

	assert.Equal(t, protocol.L0Normal, m.machine.Current())
	assert.Empty(t, exec.hedgeOrders())
	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected transition event %s -> %s", ev.From, ev.To)
	default:
	}
}

func TestTickFailsClosedOnInsufficientData(t *testing.T) {
	feed := marketdata.FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		return domain.MarketSnapshot{}, &domain.InsufficientDataError{Source: "feed", Reason: "stale"}
	})
	exec := &recordingExecutor{}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, feed, &stubPositions{}, exec))

	m.tick(context.Background(), time.Now())

	require.Equal(t, protocol.L3Preservation, m.machine.Current())
	select {
	case ev := <-m.Events():
		assert.Equal(t, protocol.CauseFailClosed, ev.Cause)
		assert.Equal(t, protocol.L3Preservation, ev.To)
	default:
		t.Fatal("expected a fail-closed transition event")
	}
}

func TestBreachPersistenceAccumulatesAcrossTicks(t *testing.T) {
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("95"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("20"),
		Timestamp: time.Now(),
	}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), &stubPositions{
			positions: []domain.Position{shortPut("100", "5.00", "5.00")},
		}, &recordingExecutor{}))

	base := time.Now()
	mtr1, err := m.breachMetrics([]domain.Position{shortPut("100", "5.00", "5.00")}, snap, base)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mtr1.TimeInBreach)

	mtr2, err := m.breachMetrics([]domain.Position{shortPut("100", "5.00", "5.00")}, snap, base.Add(45*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, mtr2.TimeInBreach)

	// Breach clears, then re-enters: the clock restarts.
	calm := snap
	calm.Price = decimal.RequireFromString("110")
	_, err = m.breachMetrics([]domain.Position{shortPut("100", "5.00", "2.00")}, calm, base.Add(60*time.Second))
	require.NoError(t, err)

	mtr3, err := m.breachMetrics([]domain.Position{shortPut("100", "5.00", "5.00")}, snap, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mtr3.TimeInBreach)
}

func TestPositionLossPct(t *testing.T) {
	tests := []struct {
		name string
		pos  domain.Position
		want string
	}{
		{"underwater position", shortPut("100", "5.00", "10.00"), "100"},
		{"profitable position", shortPut("100", "5.00", "2.00"), "0"},
		{"flat position", shortPut("100", "5.00", "5.00"), "0"},
		{"zero credit guards division", shortPut("100", "0", "3.00"), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := positionLossPct(tt.pos)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestCheckRollApproved(t *testing.T) {
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("94"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("22"),
		Timestamp: time.Now(),
	}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), &stubPositions{}, &recordingExecutor{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	decision, err := m.CheckRoll(ctx, RollProposal{
		Position:  shortPut("100", "5.00", "6.00"),
		RollDebit: decimal.RequireFromString("2.00"),
		Quote: liquidity.ContractQuote{
			Symbol:         "XYZ",
			OpenInterest:   1200,
			AvgDailyVolume: decimal.RequireFromString("400"),
			Bid:            decimal.RequireFromString("5.90"),
			Ask:            decimal.RequireFromString("6.10"),
		},
		OrderSize: decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Violations)
	assert.True(t, decision.Breach.Triggered)
	assert.True(t, decision.Liquidity.Admitted)
	assert.False(t, decision.Cost.ThresholdExceeded)
	assert.Nil(t, decision.Escalated)
}

func TestCheckRollCostCeilingForcesL3(t *testing.T) {
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("94"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("22"),
		Timestamp: time.Now(),
	}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), &stubPositions{}, &recordingExecutor{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	decision, err := m.CheckRoll(ctx, RollProposal{
		Position:  shortPut("100", "5.00", "6.00"),
		RollDebit: decimal.RequireFromString("2.75"), // 55% of credit
		Quote: liquidity.ContractQuote{
			Symbol:         "XYZ",
			OpenInterest:   1200,
			AvgDailyVolume: decimal.RequireFromString("400"),
			Bid:            decimal.RequireFromString("5.90"),
			Ask:            decimal.RequireFromString("6.10"),
		},
		OrderSize: decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	require.NotNil(t, decision.Escalated)
	assert.Equal(t, protocol.L3Preservation, decision.Escalated.To)
	assert.Equal(t, protocol.CauseRollCostOverride, decision.Escalated.Cause)

	codes := make([]string, 0, len(decision.Violations))
	for _, v := range decision.Violations {
		codes = append(codes, v.Code)
	}
	assert.Contains(t, codes, "roll_cost_exceeded")

	status, err := m.CurrentStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.L3Preservation, status.Level)
	assert.Equal(t, protocol.DefaultLevelTable().Config(protocol.L3Preservation).MonitorInterval, status.Cadence)
}

func TestCheckRollReportsAllViolationsTogether(t *testing.T) {
	// Calm market: trigger not met. Thin illiquid quote and an oversized roll
	// debit stack two more violations on top; none of them masks the others.
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("103"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("15"),
		Timestamp: time.Now(),
	}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), &stubPositions{}, &recordingExecutor{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	decision, err := m.CheckRoll(ctx, RollProposal{
		Position:  shortPut("100", "5.00", "6.00"),
		RollDebit: decimal.RequireFromString("3.00"),
		Quote: liquidity.ContractQuote{
			Symbol:         "XYZ",
			OpenInterest:   50,
			AvgDailyVolume: decimal.RequireFromString("40"),
			Bid:            decimal.RequireFromString("5.00"),
			Ask:            decimal.RequireFromString("7.00"),
		},
		OrderSize: decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	codes := make(map[string]bool)
	for _, v := range decision.Violations {
		codes[v.Code] = true
	}
	assert.True(t, codes["roll_trigger_not_met"])
	assert.True(t, codes["roll_cost_exceeded"])
	assert.True(t, codes["open_interest_below_minimum"])
	assert.True(t, codes["volume_below_minimum"])
	assert.True(t, codes["spread_too_wide"])
	assert.True(t, codes["order_size_too_large"])
}

func TestRunStopsOnCancel(t *testing.T) {
	snap := domain.MarketSnapshot{
		Symbol:    "XYZ",
		Price:     decimal.RequireFromString("110"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("14"),
		Timestamp: time.Now(),
	}
	m := New("sleeve-a", "XYZ", account.DefaultTierTable()[account.TierGeneration],
		protocol.DefaultLevelTable(), testDeps(t, snapshotFeed(snap), &stubPositions{}, &recordingExecutor{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on context cancellation")
	}

	// Events closes when the loop exits.
	_, open := <-m.Events()
	assert.False(t, open)
}
