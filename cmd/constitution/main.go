package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "constitution"
	version = "v1.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Constitution compliance and risk escalation engine",
		Version: version,
		Long: `Deterministic compliance core for wealth-management option sleeves.

Monitors every sleeve against the Constitution's escalation protocol
(L0-L3), validates rolls, plans hedge deployments, grades assignment
risk, and journals every decision for audit.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine",
		Long:  "Start sleeve monitors, the scheduler, and the operational HTTP surface.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "config/constitution.yaml", "Path to the engine configuration")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor a single sleeve in the foreground",
		Long:  "Run one sleeve's monitor loop and log transitions. Diagnostics only: no journal, scheduler, or HTTP surface.",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().String("config", "config/constitution.yaml", "Path to the engine configuration")
	monitorCmd.Flags().String("sleeve", "", "Sleeve id to monitor")
	_ = monitorCmd.MarkFlagRequired("sleeve")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one position against the Constitution thresholds",
		Long:  "One-shot breach, roll-cost, and assignment evaluation. No services are contacted and nothing is journaled.",
		RunE:  runCheck,
	}
	checkCmd.Flags().String("symbol", "", "Underlying symbol")
	checkCmd.Flags().String("right", "PUT", "Option right (PUT|CALL)")
	checkCmd.Flags().String("strike", "", "Strike price")
	checkCmd.Flags().String("credit", "", "Original entry credit")
	checkCmd.Flags().String("roll-debit", "", "Proposed roll net debit (optional)")
	checkCmd.Flags().String("spot", "", "Underlying spot price")
	checkCmd.Flags().String("atr", "", "ATR(5) of the underlying")
	checkCmd.Flags().String("expiry", "", "Expiration (RFC3339, optional)")
	checkCmd.Flags().String("tier", "GENERATION", "Account tier (GENERATION|REVENUE|COMMERCIAL)")
	for _, required := range []string{"symbol", "strike", "credit", "spot", "atr"} {
		_ = checkCmd.MarkFlagRequired(required)
	}

	rootCmd.AddCommand(serveCmd, monitorCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
