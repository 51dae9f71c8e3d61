package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/config"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/gateway"
	"github.com/wealthops/constitution/internal/hedge"
	"github.com/wealthops/constitution/internal/liquidity"
	"github.com/wealthops/constitution/internal/monitor"
	"github.com/wealthops/constitution/internal/persistence"
)

// runMonitor runs a single sleeve's monitor in the foreground, logging every
// transition. Diagnostics aid: no scheduler, no HTTP surface, no journal.
func runMonitor(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	sleeveID, _ := cmd.Flags().GetString("sleeve")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Gateway.BaseURL == "" {
		return &domain.ConfigurationError{Section: "gateway", Reason: "base_url is required for monitor"}
	}

	var sleeve *config.SleeveConfig
	for i := range cfg.Sleeves {
		if cfg.Sleeves[i].ID == sleeveID {
			sleeve = &cfg.Sleeves[i]
			break
		}
	}
	if sleeve == nil {
		return fmt.Errorf("sleeve %q not found in configuration", sleeveID)
	}

	gate, err := liquidity.NewGate(cfg.LiquidityThresholds())
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.Timeout())
	feed, _ := buildFeed(cfg, gw)

	m := monitor.New(
		domain.SleeveID(sleeve.ID),
		sleeve.Symbol,
		cfg.TierTable()[account.Tier(sleeve.Tier)],
		cfg.LevelTable(),
		monitor.Deps{
			Feed:      feed,
			Positions: gw,
			Ledger:    gw,
			Executor:  gw,
			Gate:      gate,
			Planner:   hedge.NewPlanner(),
			Journal:   persistence.NopJournal{},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for ev := range m.Events() {
			log.Info().
				Str("sleeve", string(ev.Sleeve)).
				Str("from", ev.From.String()).
				Str("to", ev.To.String()).
				Str("cause", string(ev.Cause)).
				Msg("transition")
		}
	}()

	log.Info().Str("sleeve", sleeve.ID).Str("symbol", sleeve.Symbol).Msg("monitoring (ctrl-c to stop)")
	m.Run(ctx)
	return nil
}
