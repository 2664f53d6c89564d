package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfiguration is returned when loaded settings fail validation.
// The engine refuses to run with invalid thresholds.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// PairConfig identifies one instrument pair in the monitored universe
type PairConfig struct {
	SymbolA string `mapstructure:"symbol_a"`
	SymbolB string `mapstructure:"symbol_b"`
	Sector  string `mapstructure:"sector"`
}

// FeeRates holds the broker/exchange/tax rate constants. Per-crore rates
// are rupee amounts per crore (1e7) of notional.
type FeeRates struct {
	IntradayBrokeragePct      float64 `mapstructure:"intraday_brokerage_pct"`
	BrokerageCapPerOrder      float64 `mapstructure:"brokerage_cap_per_order"`
	STTIntradaySellPct        float64 `mapstructure:"stt_intraday_sell_pct"`
	STTDeliveryPct            float64 `mapstructure:"stt_delivery_pct"`
	ExchangePerCrore          float64 `mapstructure:"exchange_per_crore"`
	SEBIPerCrore              float64 `mapstructure:"sebi_per_crore"`
	StampDutyIntradayPerCrore float64 `mapstructure:"stamp_duty_intraday_per_crore"`
	StampDutyDeliveryPerCrore float64 `mapstructure:"stamp_duty_delivery_per_crore"`
	GSTPct                    float64 `mapstructure:"gst_pct"`
}

// Config holds all application configuration
type Config struct {
	// Signal thresholds
	ZScoreEntry     float64 `mapstructure:"z_score_entry"`
	ZScoreExit      float64 `mapstructure:"z_score_exit"`
	ZScoreStop      float64 `mapstructure:"z_score_stop"`
	RollingWindow   int     `mapstructure:"rolling_window"`
	LookbackDays    int     `mapstructure:"lookback_days"`
	PValueThreshold float64 `mapstructure:"p_value_threshold"`
	MinCorrelation  float64 `mapstructure:"min_correlation"`

	// Capital allocation
	CapitalPerPair     float64 `mapstructure:"capital_per_pair"`
	MaxPositionSizePct float64 `mapstructure:"max_position_size_pct"`
	MaxActivePairs     int     `mapstructure:"max_active_pairs"`
	MinProfitPct       float64 `mapstructure:"min_profit_pct"`

	Fees  FeeRates     `mapstructure:"fees"`
	Pairs []PairConfig `mapstructure:"pairs"`

	// Market data provider
	DataBaseURL string        `mapstructure:"data_base_url"`
	DataAPIKey  string        `mapstructure:"data_api_key"`
	StreamURL   string        `mapstructure:"stream_url"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RefreshMS   int           `mapstructure:"refresh_ms"`
}

// RefreshInterval returns how often the monitor re-evaluates the universe.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMS) * time.Millisecond
}

// Load reads the YAML config file (if present), applies environment
// variable overrides and validates the result.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STATARB")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("statarb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.statarb")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Pairs) == 0 {
		cfg.Pairs = DefaultPairs()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded settings. All thresholds must be finite,
// entries must trigger beyond exits and stops beyond exits.
func (c *Config) Validate() error {
	for name, val := range map[string]float64{
		"z_score_entry":     c.ZScoreEntry,
		"z_score_exit":      c.ZScoreExit,
		"z_score_stop":      c.ZScoreStop,
		"p_value_threshold": c.PValueThreshold,
		"min_correlation":   c.MinCorrelation,
	} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfiguration, name, val)
		}
	}

	if c.ZScoreExit >= c.ZScoreStop {
		return fmt.Errorf("%w: z_score_exit (%.2f) must be below z_score_stop (%.2f)",
			ErrInvalidConfiguration, c.ZScoreExit, c.ZScoreStop)
	}
	if c.ZScoreEntry <= c.ZScoreExit {
		return fmt.Errorf("%w: z_score_entry (%.2f) must be above z_score_exit (%.2f)",
			ErrInvalidConfiguration, c.ZScoreEntry, c.ZScoreExit)
	}
	if c.RollingWindow < 2 {
		return fmt.Errorf("%w: rolling_window must be at least 2, got %d",
			ErrInvalidConfiguration, c.RollingWindow)
	}
	if c.LookbackDays < c.RollingWindow {
		return fmt.Errorf("%w: lookback_days (%d) must cover the rolling window (%d)",
			ErrInvalidConfiguration, c.LookbackDays, c.RollingWindow)
	}
	if c.PValueThreshold <= 0 || c.PValueThreshold >= 1 {
		return fmt.Errorf("%w: p_value_threshold must be in (0, 1), got %v",
			ErrInvalidConfiguration, c.PValueThreshold)
	}
	if c.CapitalPerPair <= 0 {
		return fmt.Errorf("%w: capital_per_pair must be positive, got %v",
			ErrInvalidConfiguration, c.CapitalPerPair)
	}
	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 1 {
		return fmt.Errorf("%w: max_position_size_pct must be in (0, 1], got %v",
			ErrInvalidConfiguration, c.MaxPositionSizePct)
	}
	if c.MaxActivePairs < 1 {
		return fmt.Errorf("%w: max_active_pairs must be at least 1, got %d",
			ErrInvalidConfiguration, c.MaxActivePairs)
	}
	if c.MinProfitPct < 0 || math.IsNaN(c.MinProfitPct) || math.IsInf(c.MinProfitPct, 0) {
		return fmt.Errorf("%w: min_profit_pct must be non-negative and finite, got %v",
			ErrInvalidConfiguration, c.MinProfitPct)
	}

	for name, rate := range map[string]float64{
		"intraday_brokerage_pct":        c.Fees.IntradayBrokeragePct,
		"brokerage_cap_per_order":       c.Fees.BrokerageCapPerOrder,
		"stt_intraday_sell_pct":         c.Fees.STTIntradaySellPct,
		"stt_delivery_pct":              c.Fees.STTDeliveryPct,
		"exchange_per_crore":            c.Fees.ExchangePerCrore,
		"sebi_per_crore":                c.Fees.SEBIPerCrore,
		"stamp_duty_intraday_per_crore": c.Fees.StampDutyIntradayPerCrore,
		"stamp_duty_delivery_per_crore": c.Fees.StampDutyDeliveryPerCrore,
		"gst_pct":                       c.Fees.GSTPct,
	} {
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("%w: fee rate %s must be non-negative and finite, got %v",
				ErrInvalidConfiguration, name, rate)
		}
	}

	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.SymbolA == "" || p.SymbolB == "" {
			return fmt.Errorf("%w: pair with empty symbol", ErrInvalidConfiguration)
		}
		if p.SymbolA == p.SymbolB {
			return fmt.Errorf("%w: pair %s is degenerate", ErrInvalidConfiguration, p.SymbolA)
		}
		key := pairKey(p.SymbolA, p.SymbolB)
		if seen[key] {
			return fmt.Errorf("%w: duplicate pair %s", ErrInvalidConfiguration, key)
		}
		seen[key] = true
	}

	return nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("z_score_entry", 2.0)
	v.SetDefault("z_score_exit", 0.5)
	v.SetDefault("z_score_stop", 2.5)
	v.SetDefault("rolling_window", 20)
	v.SetDefault("lookback_days", 60)
	v.SetDefault("p_value_threshold", 0.05)
	v.SetDefault("min_correlation", 0.1)

	v.SetDefault("capital_per_pair", 100000.0)
	v.SetDefault("max_position_size_pct", 1.0)
	v.SetDefault("max_active_pairs", 3)
	v.SetDefault("min_profit_pct", 0.001)

	// Zerodha equity rate card
	v.SetDefault("fees.intraday_brokerage_pct", 0.0003)
	v.SetDefault("fees.brokerage_cap_per_order", 20.0)
	v.SetDefault("fees.stt_intraday_sell_pct", 0.00025)
	v.SetDefault("fees.stt_delivery_pct", 0.001)
	v.SetDefault("fees.exchange_per_crore", 297.0)
	v.SetDefault("fees.sebi_per_crore", 10.0)
	v.SetDefault("fees.stamp_duty_intraday_per_crore", 300.0)
	v.SetDefault("fees.stamp_duty_delivery_per_crore", 1500.0)
	v.SetDefault("fees.gst_pct", 0.18)

	v.SetDefault("data_base_url", "https://data.pairsight.dev")
	v.SetDefault("data_api_key", "")
	v.SetDefault("stream_url", "wss://stream.pairsight.dev/v1/bars")
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("refresh_ms", 30000)
}

// DefaultPairs is the built-in NSE universe, grouped by sector.
func DefaultPairs() []PairConfig {
	return []PairConfig{
		{SymbolA: "HDFCBANK.NS", SymbolB: "ICICIBANK.NS", Sector: "banking"},
		{SymbolA: "KOTAKBANK.NS", SymbolB: "AXISBANK.NS", Sector: "banking"},
		{SymbolA: "SBIN.NS", SymbolB: "PNB.NS", Sector: "banking"},
		{SymbolA: "TCS.NS", SymbolB: "INFY.NS", Sector: "it"},
		{SymbolA: "WIPRO.NS", SymbolB: "HCLTECH.NS", Sector: "it"},
		{SymbolA: "TECHM.NS", SymbolB: "MPHASIS.NS", Sector: "it"},
		{SymbolA: "SUNPHARMA.NS", SymbolB: "DRREDDY.NS", Sector: "pharma"},
		{SymbolA: "CIPLA.NS", SymbolB: "LUPIN.NS", Sector: "pharma"},
		{SymbolA: "HINDUNILVR.NS", SymbolB: "ITC.NS", Sector: "fmcg"},
		{SymbolA: "DABUR.NS", SymbolB: "MARICO.NS", Sector: "fmcg"},
		{SymbolA: "HEROMOTOCO.NS", SymbolB: "BAJAJ-AUTO.NS", Sector: "auto"},
		{SymbolA: "M&M.NS", SymbolB: "TVSMOTOR.NS", Sector: "auto"},
		{SymbolA: "RELIANCE.NS", SymbolB: "ONGC.NS", Sector: "energy"},
		{SymbolA: "IOC.NS", SymbolB: "BPCL.NS", Sector: "energy"},
		{SymbolA: "POWERGRID.NS", SymbolB: "NTPC.NS", Sector: "energy"},
	}
}
