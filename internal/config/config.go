// Package config defines all configuration for the trading core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via AURORA_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool              `mapstructure:"dry_run"`
	Symbols     []string          `mapstructure:"symbols"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Gates       GatesConfig       `mapstructure:"gates"`
	SPRT        SPRTConfig        `mapstructure:"sprt"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Features    FeaturesConfig    `mapstructure:"features"`
	LeadLag     LeadLagConfig     `mapstructure:"leadlag"`
	TCA         TCAConfig         `mapstructure:"tca"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// TradingConfig sizes the orders the engine emits.
//
//   - OrderQty: base-asset quantity per order (rounded to the lot grid).
//   - EquityUSD: account equity baseline for daily-PnL percentage.
//   - StaleBookS: book age beyond which DQ flags the feed stale.
type TradingConfig struct {
	OrderQty   float64 `mapstructure:"order_qty"`
	EquityUSD  float64 `mapstructure:"equity_usd"`
	StaleBookS float64 `mapstructure:"stale_book_s"`
}

// ExchangeConfig selects the execution backend. Mode "shadow" simulates
// fills; "live" trades through the REST API and requires credentials.
type ExchangeConfig struct {
	Mode        string        `mapstructure:"mode"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SlippageBps float64       `mapstructure:"slippage_bps"`
}

// IdempotencyConfig selects the guard's store backend.
//
//   - Backend: "memory" or "sqlite"; unknown values fall back to memory.
//   - Path: sqlite file location (default data/idem.db).
//   - RetentionDays: grace period before expired rows are swept.
type IdempotencyConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// GatesConfig sets the static risk gate thresholds.
type GatesConfig struct {
	SpreadBpsLimit         float64 `mapstructure:"spread_bps_limit"`
	LatencyMsLimit         float64 `mapstructure:"latency_ms_limit"`
	VolGuardStdBps         float64 `mapstructure:"vol_guard_std_bps"`
	DailyDDLimitPct        float64 `mapstructure:"daily_dd_limit_pct"`
	CVaRLimit              float64 `mapstructure:"cvar_limit"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	RejectStormPct         float64 `mapstructure:"reject_storm_pct"`
	RejectStormCooldownS   int     `mapstructure:"reject_storm_cooldown_s"`
}

// SPRTConfig tunes the sequential test and its alpha-spending ledger.
type SPRTConfig struct {
	Alpha            float64 `mapstructure:"alpha"`
	Beta             float64 `mapstructure:"beta"`
	AlphaPolicy      string  `mapstructure:"alpha_policy"` // pocock, obf, bh-fdr
	TotalAlpha       float64 `mapstructure:"total_alpha"`
	ExpectedNTests   int     `mapstructure:"expected_n_tests"`
	TailThreshold    float64 `mapstructure:"tail_threshold"`
	BootstrapSamples int     `mapstructure:"bootstrap_samples"`
}

// ScoringConfig holds the fixed linear model.
type ScoringConfig struct {
	Weights       map[string]float64 `mapstructure:"weights"`
	Intercept     float64            `mapstructure:"intercept"`
	Gamma         float64            `mapstructure:"gamma"`
	UseCrossAsset bool               `mapstructure:"use_cross_asset"`
	RefSymbol     string             `mapstructure:"ref_symbol"`
}

// FeaturesConfig tunes the streaming feature engine.
type FeaturesConfig struct {
	OBILevels    int     `mapstructure:"obi_levels"`
	WindowS      float64 `mapstructure:"window_s"`
	BucketVolume float64 `mapstructure:"bucket_volume"`
	VPINBuckets  int     `mapstructure:"vpin_buckets"`
	MaxTrades    int     `mapstructure:"max_trades"`
	EMAHalfLifeS float64 `mapstructure:"ema_half_life_s"`
}

// LeadLagConfig tunes the cross-asset Hayashi–Yoshida estimator.
type LeadLagConfig struct {
	WindowS   float64   `mapstructure:"window_s"`
	MaxPoints int       `mapstructure:"max_points"`
	Lags      []float64 `mapstructure:"lags"`
}

// TCAConfig tunes the expected-return gate.
type TCAConfig struct {
	PiMinBps      float64 `mapstructure:"pi_min_bps"`
	KappaBpsPerMs float64 `mapstructure:"kappa_bps_per_ms"`
	DeltaPStar    float64 `mapstructure:"delta_p_star"`
	PayoffRatio   float64 `mapstructure:"payoff_ratio"`
	CostBps       float64 `mapstructure:"cost_bps"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: AURORA_API_KEY, AURORA_API_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AURORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("AURORA_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("AURORA_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if os.Getenv("AURORA_DRY_RUN") == "true" || os.Getenv("AURORA_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if days := os.Getenv("AURORA_IDEM_RETENTION_DAYS"); days != "" {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n > 0 {
			cfg.Idempotency.RetentionDays = n
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.order_qty", 0.001)
	v.SetDefault("trading.equity_usd", 10000.0)
	v.SetDefault("trading.stale_book_s", 5.0)

	v.SetDefault("exchange.mode", "shadow")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.slippage_bps", 2.0)

	v.SetDefault("idempotency.backend", "memory")
	v.SetDefault("idempotency.path", "data/idem.db")
	v.SetDefault("idempotency.retention_days", 30)

	v.SetDefault("gates.spread_bps_limit", 80.0)
	v.SetDefault("gates.latency_ms_limit", 500.0)
	v.SetDefault("gates.vol_guard_std_bps", 300.0)
	v.SetDefault("gates.daily_dd_limit_pct", 10.0)
	v.SetDefault("gates.cvar_limit", 0.0)
	v.SetDefault("gates.max_concurrent_positions", 5)
	v.SetDefault("gates.reject_storm_pct", 0.5)
	v.SetDefault("gates.reject_storm_cooldown_s", 60)

	v.SetDefault("sprt.alpha", 0.05)
	v.SetDefault("sprt.beta", 0.20)
	v.SetDefault("sprt.alpha_policy", "pocock")
	v.SetDefault("sprt.total_alpha", 0.5)
	v.SetDefault("sprt.expected_n_tests", 10)
	v.SetDefault("sprt.tail_threshold", 2.5)
	v.SetDefault("sprt.bootstrap_samples", 1000)

	v.SetDefault("features.obi_levels", 5)
	v.SetDefault("features.window_s", 60.0)
	v.SetDefault("features.bucket_volume", 50.0)
	v.SetDefault("features.vpin_buckets", 20)
	v.SetDefault("features.max_trades", 10000)
	v.SetDefault("features.ema_half_life_s", 2.0)

	v.SetDefault("leadlag.window_s", 60.0)
	v.SetDefault("leadlag.max_points", 8000)

	v.SetDefault("tca.pi_min_bps", 0.5)
	v.SetDefault("tca.kappa_bps_per_ms", 0.1)
	v.SetDefault("tca.delta_p_star", 0.02)
	v.SetDefault("tca.payoff_ratio", 2.0)
	v.SetDefault("tca.cost_bps", 0.3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	switch c.Exchange.Mode {
	case "shadow":
	case "live":
		if c.Exchange.BaseURL == "" {
			return fmt.Errorf("exchange.base_url is required in live mode")
		}
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange credentials are required in live mode (set AURORA_API_KEY / AURORA_API_SECRET)")
		}
	default:
		return fmt.Errorf("exchange.mode must be shadow or live, got %q", c.Exchange.Mode)
	}
	if c.SPRT.Alpha <= 0 || c.SPRT.Alpha >= 1 {
		return fmt.Errorf("sprt.alpha must be in (0, 1)")
	}
	if c.SPRT.Beta <= 0 || c.SPRT.Beta >= 1 {
		return fmt.Errorf("sprt.beta must be in (0, 1)")
	}
	switch c.SPRT.AlphaPolicy {
	case "pocock", "obf", "bh-fdr":
	default:
		return fmt.Errorf("sprt.alpha_policy must be one of: pocock, obf, bh-fdr")
	}
	if c.Idempotency.RetentionDays <= 0 {
		return fmt.Errorf("idempotency.retention_days must be > 0")
	}
	if c.Gates.RejectStormPct < 0 || c.Gates.RejectStormPct > 1 {
		return fmt.Errorf("gates.reject_storm_pct must be in [0, 1]")
	}
	return nil
}
