// Package metrics exposes the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/protocol"
)

// Collector holds the engine's prometheus instruments. One Collector is
// shared across all sleeve monitors.
type Collector struct {
	protocolLevel   *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	gateRejections  *prometheus.CounterVec
	snapshotAge     prometheus.Histogram
	hedgePlans      *prometheus.CounterVec
	forkEvents      prometheus.Counter
	assignmentScans prometheus.Counter
}

// NewCollector builds and registers the instruments on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		protocolLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "constitution_protocol_level",
			Help: "Current protocol level per sleeve (0=L0 .. 3=L3).",
		}, []string{"sleeve"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constitution_protocol_transitions_total",
			Help: "Protocol level transitions by sleeve and cause.",
		}, []string{"sleeve", "cause"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constitution_gate_rejections_total",
			Help: "Threshold gate rejections by gate name.",
		}, []string{"gate"}),
		snapshotAge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "constitution_snapshot_age_seconds",
			Help:    "Age of market snapshots at evaluation time.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		hedgePlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constitution_hedge_plans_total",
			Help: "Hedge deployment plans by outcome.",
		}, []string{"outcome"}),
		forkEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "constitution_fork_events_total",
			Help: "Account fork events.",
		}),
		assignmentScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "constitution_assignment_sweeps_total",
			Help: "Friday assignment sweeps executed.",
		}),
	}
	reg.MustRegister(
		c.protocolLevel, c.transitions, c.gateRejections,
		c.snapshotAge, c.hedgePlans, c.forkEvents, c.assignmentScans,
	)
	return c
}

// ObserveTransition records one level change.
func (c *Collector) ObserveTransition(ev protocol.TransitionEvent) {
	c.protocolLevel.WithLabelValues(string(ev.Sleeve)).Set(float64(ev.To))
	c.transitions.WithLabelValues(string(ev.Sleeve), string(ev.Cause)).Inc()
}

// SetLevel records a sleeve's current level without a transition (startup).
func (c *Collector) SetLevel(sleeve domain.SleeveID, level protocol.Level) {
	c.protocolLevel.WithLabelValues(string(sleeve)).Set(float64(level))
}

// ObserveGateRejection counts one rejected evaluation for the named gate.
func (c *Collector) ObserveGateRejection(gate string) {
	c.gateRejections.WithLabelValues(gate).Inc()
}

// ObserveSnapshotAge records snapshot staleness at evaluation time.
func (c *Collector) ObserveSnapshotAge(seconds float64) {
	c.snapshotAge.Observe(seconds)
}

// ObserveHedgePlan counts one plan by outcome ("approved" or "rejected").
func (c *Collector) ObserveHedgePlan(approved bool) {
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	c.hedgePlans.WithLabelValues(outcome).Inc()
}

// ObserveFork counts one account fork.
func (c *Collector) ObserveFork() { c.forkEvents.Inc() }

// ObserveAssignmentSweep counts one executed Friday sweep.
func (c *Collector) ObserveAssignmentSweep() { c.assignmentScans.Inc() }
