// Package config loads and validates the engine configuration. Configuration
// is read once at startup; any invalid value is fatal, the engine never runs
// on a partially understood config.
//
// The yaml shapes carry thresholds as plain numbers and intervals as integer
// seconds; they are converted to exact decimals and durations when the typed
// tables are built. Threshold values in config files use at most a few
// decimal places, so the float-to-decimal conversion is lossless.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/liquidity"
	"github.com/wealthops/constitution/internal/protocol"
)

// Config is the full engine configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Sleeves   []SleeveConfig  `yaml:"sleeves"`
	Levels    LevelsConfig    `yaml:"levels"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Liquidity LiquidityConfig `yaml:"liquidity"`
	Feed      FeedConfig      `yaml:"feed"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Journal   JournalConfig   `yaml:"journal"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SleeveConfig declares one monitored sleeve.
type SleeveConfig struct {
	ID     string `yaml:"id"`
	Symbol string `yaml:"symbol"`
	Tier   string `yaml:"tier"`
}

// LevelConfig is the yaml shape of one protocol level.
type LevelConfig struct {
	MonitorIntervalSecs   int     `yaml:"monitor_interval_secs"`
	BreachThresholdATR    float64 `yaml:"breach_threshold_atr"`
	LossThresholdPct      float64 `yaml:"loss_threshold_pct"`
	StopLossMultiplier    float64 `yaml:"stop_loss_multiplier"`
	RollTriggerATR        float64 `yaml:"roll_trigger_atr"`
	AutoRollEnabled       bool    `yaml:"auto_roll_enabled"`
	AutoHedgeEnabled      bool    `yaml:"auto_hedge_enabled"`
	EscalationDelaySecs   int     `yaml:"escalation_delay_secs"`
	DeescalationDelaySecs int     `yaml:"deescalation_delay_secs"`
}

// LevelsConfig holds all four protocol levels.
type LevelsConfig struct {
	L0 LevelConfig `yaml:"l0"`
	L1 LevelConfig `yaml:"l1"`
	L2 LevelConfig `yaml:"l2"`
	L3 LevelConfig `yaml:"l3"`
}

// TierConfig is the yaml shape of one account tier.
type TierConfig struct {
	MinCapital      float64 `yaml:"min_capital"`
	ForkThreshold   float64 `yaml:"fork_threshold"`
	MaxPositions    int     `yaml:"max_positions"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	RiskMultiplier  float64 `yaml:"risk_multiplier"`
	AutoForkEnabled bool    `yaml:"auto_fork_enabled"`
	RollTriggerATR  float64 `yaml:"roll_trigger_atr"`
}

// TiersConfig holds the account tier table.
type TiersConfig struct {
	Generation TierConfig `yaml:"generation"`
	Revenue    TierConfig `yaml:"revenue"`
	Commercial TierConfig `yaml:"commercial"`
}

// LiquidityConfig is the yaml shape of the order admission thresholds.
type LiquidityConfig struct {
	MinOpenInterest   int64   `yaml:"min_open_interest"`
	MinAvgDailyVolume float64 `yaml:"min_avg_daily_volume"`
	MaxSpreadPctOfMid float64 `yaml:"max_spread_pct_of_mid"`
	MaxOrderPctOfADV  float64 `yaml:"max_order_pct_of_adv"`
}

// FeedConfig tunes the market-data guards wrapped around the feed.
type FeedConfig struct {
	MaxSnapshotAgeSecs int     `yaml:"max_snapshot_age_secs"`
	RatePerSecond      float64 `yaml:"rate_per_second"`
	RateBurst          int     `yaml:"rate_burst"`
	BreakerMaxFailures uint32  `yaml:"breaker_max_failures"`
	BreakerOpenSecs    int     `yaml:"breaker_open_secs"`
}

// GatewayConfig points at the execution platform's REST API, the concrete
// implementation of the feed, position, ledger, and broker contracts.
type GatewayConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// JournalConfig configures the PostgreSQL audit journal. An empty DSN
// disables the journal (one-shot CLI checks).
type JournalConfig struct {
	DSN         string `yaml:"dsn"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RedisConfig configures the snapshot cache. An empty address disables it.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	SnapTTLSecs int    `yaml:"snapshot_ttl_secs"`
}

// HTTPConfig configures the operational HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig holds the cron expressions for scheduled sweeps.
type SchedulerConfig struct {
	AssignmentSweep string `yaml:"assignment_sweep"`
	TierCheck       string `yaml:"tier_check"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the Constitution v1.3 configuration. Load unmarshals the
// file over these values, so the file only needs to state overrides.
func Default() *Config {
	levels := protocol.DefaultLevelTable()
	tiers := account.DefaultTierTable()
	return &Config{
		Version: "1.3",
		Levels: LevelsConfig{
			L0: fromLevelConfig(levels.Config(protocol.L0Normal)),
			L1: fromLevelConfig(levels.Config(protocol.L1Enhanced)),
			L2: fromLevelConfig(levels.Config(protocol.L2Recovery)),
			L3: fromLevelConfig(levels.Config(protocol.L3Preservation)),
		},
		Tiers: TiersConfig{
			Generation: fromTierConfig(tiers[account.TierGeneration]),
			Revenue:    fromTierConfig(tiers[account.TierRevenue]),
			Commercial: fromTierConfig(tiers[account.TierCommercial]),
		},
		Liquidity: LiquidityConfig{
			MinOpenInterest:   500,
			MinAvgDailyVolume: 100,
			MaxSpreadPctOfMid: 5,
			MaxOrderPctOfADV:  10,
		},
		Feed: FeedConfig{
			MaxSnapshotAgeSecs: 30,
			RatePerSecond:      10,
			RateBurst:          20,
			BreakerMaxFailures: 3,
			BreakerOpenSecs:    30,
		},
		Gateway: GatewayConfig{TimeoutSecs: 10},
		Journal: JournalConfig{TimeoutSecs: 5},
		Redis:   RedisConfig{SnapTTLSecs: 60},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			// Friday 15:00 exchange time.
			AssignmentSweep: "0 15 * * FRI",
			TierCheck:       "0 18 * * *",
		},
	}
}

// Validate checks the whole configuration. The first invalid section aborts:
// the engine must not start on any misread table.
func (c *Config) Validate() error {
	if len(c.Sleeves) == 0 {
		return &domain.ConfigurationError{Section: "sleeves", Reason: "at least one sleeve must be configured"}
	}
	seen := make(map[string]bool, len(c.Sleeves))
	for _, s := range c.Sleeves {
		if s.ID == "" || s.Symbol == "" {
			return &domain.ConfigurationError{Section: "sleeves", Reason: "sleeve id and symbol are required"}
		}
		if seen[s.ID] {
			return &domain.ConfigurationError{Section: "sleeves", Reason: fmt.Sprintf("duplicate sleeve id %q", s.ID)}
		}
		seen[s.ID] = true
		if !account.Tier(s.Tier).Valid() {
			return &domain.ConfigurationError{Section: "sleeves", Reason: fmt.Sprintf("sleeve %s: unknown tier %q", s.ID, s.Tier)}
		}
	}

	if err := protocol.ValidateLevelTable(c.LevelTable()); err != nil {
		return err
	}
	if err := account.ValidateTierTable(c.TierTable()); err != nil {
		return err
	}
	if err := c.LiquidityThresholds().Validate(); err != nil {
		return err
	}

	if c.Feed.MaxSnapshotAgeSecs <= 0 {
		return &domain.ConfigurationError{Section: "feed", Reason: "max snapshot age must be positive"}
	}
	if c.Feed.RatePerSecond <= 0 || c.Feed.RateBurst <= 0 {
		return &domain.ConfigurationError{Section: "feed", Reason: "rate limit and burst must be positive"}
	}
	if c.Feed.BreakerMaxFailures == 0 || c.Feed.BreakerOpenSecs <= 0 {
		return &domain.ConfigurationError{Section: "feed", Reason: "breaker failure count and open window must be positive"}
	}
	if c.Gateway.BaseURL != "" && c.Gateway.TimeoutSecs <= 0 {
		return &domain.ConfigurationError{Section: "gateway", Reason: "gateway timeout must be positive"}
	}
	if c.Journal.DSN != "" && c.Journal.TimeoutSecs <= 0 {
		return &domain.ConfigurationError{Section: "journal", Reason: "journal timeout must be positive"}
	}
	if c.Redis.Addr != "" && c.Redis.SnapTTLSecs <= 0 {
		return &domain.ConfigurationError{Section: "redis", Reason: "snapshot TTL must be positive"}
	}
	if c.Scheduler.AssignmentSweep == "" {
		return &domain.ConfigurationError{Section: "scheduler", Reason: "assignment sweep schedule is required"}
	}
	return nil
}

// LevelTable converts the yaml shape into the protocol level table.
func (c *Config) LevelTable() protocol.LevelTable {
	return protocol.LevelTable{
		toLevelConfig(c.Levels.L0),
		toLevelConfig(c.Levels.L1),
		toLevelConfig(c.Levels.L2),
		toLevelConfig(c.Levels.L3),
	}
}

// TierTable converts the yaml shape into the account tier table.
func (c *Config) TierTable() account.TierTable {
	return account.TierTable{
		account.TierGeneration: toTierConfig(c.Tiers.Generation),
		account.TierRevenue:    toTierConfig(c.Tiers.Revenue),
		account.TierCommercial: toTierConfig(c.Tiers.Commercial),
	}
}

// LiquidityThresholds converts the yaml shape into the gate thresholds.
func (c *Config) LiquidityThresholds() liquidity.Thresholds {
	return liquidity.Thresholds{
		MinOpenInterest:   c.Liquidity.MinOpenInterest,
		MinAvgDailyVolume: decimal.NewFromFloat(c.Liquidity.MinAvgDailyVolume),
		MaxSpreadPctOfMid: decimal.NewFromFloat(c.Liquidity.MaxSpreadPctOfMid),
		MaxOrderPctOfADV:  decimal.NewFromFloat(c.Liquidity.MaxOrderPctOfADV),
	}
}

// MaxSnapshotAge returns the staleness window as a time.Duration.
func (f FeedConfig) MaxSnapshotAge() time.Duration {
	return time.Duration(f.MaxSnapshotAgeSecs) * time.Second
}

// BreakerOpenWindow returns the circuit-breaker open duration.
func (f FeedConfig) BreakerOpenWindow() time.Duration {
	return time.Duration(f.BreakerOpenSecs) * time.Second
}

// Timeout returns the gateway request timeout.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// Timeout returns the journal operation timeout.
func (j JournalConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutSecs) * time.Second
}

// SnapshotTTL returns the cache entry lifetime.
func (r RedisConfig) SnapshotTTL() time.Duration {
	return time.Duration(r.SnapTTLSecs) * time.Second
}

func toLevelConfig(lc LevelConfig) protocol.LevelConfig {
	return protocol.LevelConfig{
		MonitorInterval:    time.Duration(lc.MonitorIntervalSecs) * time.Second,
		BreachThresholdATR: decimal.NewFromFloat(lc.BreachThresholdATR),
		LossThresholdPct:   decimal.NewFromFloat(lc.LossThresholdPct),
		StopLossMultiplier: decimal.NewFromFloat(lc.StopLossMultiplier),
		RollTriggerATR:     decimal.NewFromFloat(lc.RollTriggerATR),
		AutoRollEnabled:    lc.AutoRollEnabled,
		AutoHedgeEnabled:   lc.AutoHedgeEnabled,
		EscalationDelay:    time.Duration(lc.EscalationDelaySecs) * time.Second,
		DeescalationDelay:  time.Duration(lc.DeescalationDelaySecs) * time.Second,
	}
}

func fromLevelConfig(lc protocol.LevelConfig) LevelConfig {
	return LevelConfig{
		MonitorIntervalSecs:   int(lc.MonitorInterval / time.Second),
		BreachThresholdATR:    lc.BreachThresholdATR.InexactFloat64(),
		LossThresholdPct:      lc.LossThresholdPct.InexactFloat64(),
		StopLossMultiplier:    lc.StopLossMultiplier.InexactFloat64(),
		RollTriggerATR:        lc.RollTriggerATR.InexactFloat64(),
		AutoRollEnabled:       lc.AutoRollEnabled,
		AutoHedgeEnabled:      lc.AutoHedgeEnabled,
		EscalationDelaySecs:   int(lc.EscalationDelay / time.Second),
		DeescalationDelaySecs: int(lc.DeescalationDelay / time.Second),
	}
}

func toTierConfig(tc TierConfig) account.TierConfig {
	return account.TierConfig{
		MinCapital:      decimal.NewFromFloat(tc.MinCapital),
		ForkThreshold:   decimal.NewFromFloat(tc.ForkThreshold),
		MaxPositions:    tc.MaxPositions,
		MaxPositionPct:  decimal.NewFromFloat(tc.MaxPositionPct),
		RiskMultiplier:  decimal.NewFromFloat(tc.RiskMultiplier),
		AutoForkEnabled: tc.AutoForkEnabled,
		RollTriggerATR:  decimal.NewFromFloat(tc.RollTriggerATR),
	}
}

func fromTierConfig(tc account.TierConfig) TierConfig {
	return TierConfig{
		MinCapital:      tc.MinCapital.InexactFloat64(),
		ForkThreshold:   tc.ForkThreshold.InexactFloat64(),
		MaxPositions:    tc.MaxPositions,
		MaxPositionPct:  tc.MaxPositionPct.InexactFloat64(),
		RiskMultiplier:  tc.RiskMultiplier.InexactFloat64(),
		AutoForkEnabled: tc.AutoForkEnabled,
		RollTriggerATR:  tc.RollTriggerATR.InexactFloat64(),
	}
}
