package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/assignment"
	"github.com/wealthops/constitution/internal/config"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/gateway"
	"github.com/wealthops/constitution/internal/hedge"
	httpapi "github.com/wealthops/constitution/internal/interfaces/http"
	"github.com/wealthops/constitution/internal/liquidity"
	"github.com/wealthops/constitution/internal/marketdata"
	"github.com/wealthops/constitution/internal/metrics"
	"github.com/wealthops/constitution/internal/monitor"
	"github.com/wealthops/constitution/internal/persistence"
	"github.com/wealthops/constitution/internal/persistence/postgres"
	"github.com/wealthops/constitution/internal/scheduler"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Gateway.BaseURL == "" {
		return &domain.ConfigurationError{Section: "gateway", Reason: "base_url is required for serve"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(reg)

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.Timeout())
	feed, breaker := buildFeed(cfg, gw)

	journal, closeJournal, err := buildJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	gate, err := liquidity.NewGate(cfg.LiquidityThresholds())
	if err != nil {
		return err
	}

	levelTable := cfg.LevelTable()
	tierTable := cfg.TierTable()

	deps := monitor.Deps{
		Feed:      feed,
		Positions: gw,
		Ledger:    gw,
		Executor:  gw,
		Gate:      gate,
		Planner:   hedge.NewPlanner(),
		Journal:   journal,
		Metrics:   collector,
	}

	var (
		wg       sync.WaitGroup
		monitors []*monitor.Monitor
		sleeves  []scheduler.Sleeve
	)
	for _, sc := range cfg.Sleeves {
		tier := account.Tier(sc.Tier)
		m := monitor.New(domain.SleeveID(sc.ID), sc.Symbol, tierTable[tier], levelTable, deps)
		monitors = append(monitors, m)
		sleeves = append(sleeves, scheduler.Sleeve{
			ID:     domain.SleeveID(sc.ID),
			Symbol: sc.Symbol,
			Tier:   tier,
		})

		wg.Add(1)
		go func(m *monitor.Monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
		go drainEvents(m)
	}

	sched := scheduler.New(sleeves, scheduler.Deps{
		Feed:       feed,
		Positions:  gw,
		Ledger:     gw,
		Executor:   gw,
		Assignment: assignment.NewEngine(),
		Fork:       account.NewEngine(tierTable),
		Journal:    journal,
		Metrics:    collector,
	})
	if err := sched.Start(cfg.Scheduler.AssignmentSweep, cfg.Scheduler.TierCheck); err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.Deps{
		Statuses:     &monitorStatuses{monitors: monitors},
		Journal:      journal,
		BreakerState: func() string { return breaker.State().String() },
		Gatherer:     reg,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	log.Info().
		Int("sleeves", len(monitors)).
		Str("http", cfg.HTTP.Addr).
		Msg("constitution engine running")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	sched.Stop()
	wg.Wait()
	log.Info().Msg("constitution engine stopped")
	return nil
}

// buildFeed stacks the guards around the gateway feed: rate limit, circuit
// breaker, optional last-known-good cache, and the staleness guard outermost
// so even a cached snapshot must be inside the freshness window.
func buildFeed(cfg *config.Config, gw *gateway.Client) (marketdata.Feed, *marketdata.BreakerFeed) {
	var feed marketdata.Feed = marketdata.NewRateLimitedFeed(gw, cfg.Feed.RatePerSecond, cfg.Feed.RateBurst)
	breaker := marketdata.NewBreakerFeed(feed, "market-feed", cfg.Feed.BreakerMaxFailures, cfg.Feed.BreakerOpenWindow())
	feed = breaker

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		feed = marketdata.NewCachedFeed(feed, marketdata.NewSnapshotCache(rdb, cfg.Redis.SnapshotTTL()))
	}

	return marketdata.NewStalenessGuard(feed, cfg.Feed.MaxSnapshotAge()), breaker
}

// buildJournal connects the audit journal. A configured journal that cannot
// be reached is startup-fatal; an unconfigured one degrades to a no-op with
// a loud warning.
func buildJournal(ctx context.Context, cfg *config.Config) (persistence.Journal, func(), error) {
	if cfg.Journal.DSN == "" {
		log.Warn().Msg("no journal configured, transitions will not be persisted")
		return persistence.NopJournal{}, func() {}, nil
	}

	db, err := sqlx.Open("postgres", cfg.Journal.DSN)
	if err != nil {
		return nil, nil, err
	}
	journal := postgres.NewJournal(db, cfg.Journal.Timeout())
	if err := journal.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return journal, func() { db.Close() }, nil
}

// drainEvents consumes a monitor's event stream. Transitions are already
// journaled and counted by the monitor itself; the stream exists for
// additional consumers and must not back up.
func drainEvents(m *monitor.Monitor) {
	for ev := range m.Events() {
		log.Debug().
			Str("sleeve", string(ev.Sleeve)).
			Str("from", ev.From.String()).
			Str("to", ev.To.String()).
			Msg("transition event consumed")
	}
}

// monitorStatuses adapts the monitor actors to the /status endpoint.
type monitorStatuses struct {
	monitors []*monitor.Monitor
}

func (ms *monitorStatuses) Statuses(ctx context.Context) ([]httpapi.SleeveStatus, error) {
	out := make([]httpapi.SleeveStatus, 0, len(ms.monitors))
	for _, m := range ms.monitors {
		st, err := m.CurrentStatus(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, httpapi.SleeveStatus{
			Sleeve:         string(st.Sleeve),
			Level:          int(st.Level),
			LevelName:      st.LevelName,
			CadenceSeconds: st.Cadence.Seconds(),
			LastTransition: st.LastTransition,
		})
	}
	return out, nil
}
