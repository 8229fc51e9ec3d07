// Package config provides configuration management for the evaluation engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"propdesk/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine      EngineConfig       `mapstructure:"engine"`
	Oracle      OracleConfig       `mapstructure:"oracle"`
	Challenges  ChallengeConfig    `mapstructure:"challenges"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Credentials Credentials        `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds execution engine and loop configuration.
type EngineConfig struct {
	DBPath          string        `mapstructure:"db_path"`
	Leverage        float64       `mapstructure:"leverage"`
	SlippageBound   float64       `mapstructure:"slippage_bound"` // execution price = ref * (1 + U(-b, b))
	MatchInterval   time.Duration `mapstructure:"match_interval"`
	StopInterval    time.Duration `mapstructure:"stop_interval"`
	EquityInterval  time.Duration `mapstructure:"equity_interval"`
	RiskInterval    time.Duration `mapstructure:"risk_interval"`
	SessionDuration time.Duration `mapstructure:"session_duration"`
}

// OracleConfig holds price feed configuration.
type OracleConfig struct {
	Mode         string        `mapstructure:"mode"` // "synthetic", "kite"
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// ChallengeConfig holds evaluation rule overrides applied by the risk
// manager on top of the built-in challenge table.
type ChallengeConfig struct {
	MaxDrawdownPct         float64 `mapstructure:"max_drawdown_pct"`
	DailyDrawdownPct       float64 `mapstructure:"daily_drawdown_pct"`
	OneStepTargetPct       float64 `mapstructure:"one_step_target_pct"`
	TwoStepPhase1TargetPct float64 `mapstructure:"two_step_phase1_target_pct"`
	TwoStepPhase2TargetPct float64 `mapstructure:"two_step_phase2_target_pct"`
}

// InstrumentConfig holds per-symbol market simulation parameters.
type InstrumentConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	Multiplier int     `mapstructure:"multiplier"`
	SeedPrice  float64 `mapstructure:"seed_price"`
	Volatility float64 `mapstructure:"volatility"`
	SpreadMin  float64 `mapstructure:"spread_min"`
	SpreadMax  float64 `mapstructure:"spread_max"`
	MaxSpread  float64 `mapstructure:"max_spread"`
}

// MetricsConfig holds the Prometheus exposition endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Credentials holds API credentials for the live price feed.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/propdesk"
	}
	return filepath.Join(home, ".config", "propdesk")
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DBPath:          filepath.Join(DefaultConfigDir(), "propdesk.db"),
			Leverage:        10,
			SlippageBound:   0.0005,
			MatchInterval:   time.Second,
			StopInterval:    time.Second,
			EquityInterval:  2 * time.Second,
			RiskInterval:    time.Second,
			SessionDuration: 30 * 24 * time.Hour,
		},
		Oracle: OracleConfig{
			Mode:         "synthetic",
			TickInterval: time.Second,
		},
		Challenges: ChallengeConfig{
			MaxDrawdownPct:         0.04,
			DailyDrawdownPct:       0.02,
			OneStepTargetPct:       0.10,
			TwoStepPhase1TargetPct: 0.08,
			TwoStepPhase2TargetPct: 0.05,
		},
		Instruments: []InstrumentConfig{
			{Symbol: "NIFTY", Multiplier: 50, SeedPrice: 21500, Volatility: 3, SpreadMin: 0.5, SpreadMax: 2.5, MaxSpread: 10},
			{Symbol: "BANKNIFTY", Multiplier: 15, SeedPrice: 46500, Volatility: 9, SpreadMin: 1, SpreadMax: 6, MaxSpread: 25},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9185",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Credentials are only needed for the live feed; absence is fine.
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("PROPDESK_ORACLE_MODE"); v != "" {
		cfg.Oracle.Mode = v
	}
	if v := os.Getenv("PROPDESK_DB_PATH"); v != "" {
		cfg.Engine.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Oracle.Mode != "synthetic" && c.Oracle.Mode != "kite" {
		return fmt.Errorf("invalid oracle mode: %s (must be 'synthetic' or 'kite')", c.Oracle.Mode)
	}
	if c.Engine.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive")
	}
	if c.Engine.SlippageBound < 0 || c.Engine.SlippageBound > 0.01 {
		return fmt.Errorf("slippage_bound must be between 0 and 0.01")
	}
	if c.Challenges.MaxDrawdownPct <= 0 || c.Challenges.MaxDrawdownPct >= 1 {
		return fmt.Errorf("max_drawdown_pct must be between 0 and 1")
	}
	if c.Challenges.DailyDrawdownPct <= 0 || c.Challenges.DailyDrawdownPct >= 1 {
		return fmt.Errorf("daily_drawdown_pct must be between 0 and 1")
	}
	targets := map[string]float64{
		"one_step_target_pct":        c.Challenges.OneStepTargetPct,
		"two_step_phase1_target_pct": c.Challenges.TwoStepPhase1TargetPct,
		"two_step_phase2_target_pct": c.Challenges.TwoStepPhase2TargetPct,
	}
	for name, pct := range targets {
		if pct <= 0 || pct >= 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	for _, inst := range c.Instruments {
		if inst.Multiplier <= 0 {
			return fmt.Errorf("instrument %s: multiplier must be positive", inst.Symbol)
		}
		if inst.SpreadMin < 0 || inst.SpreadMax < inst.SpreadMin {
			return fmt.Errorf("instrument %s: invalid spread range", inst.Symbol)
		}
	}
	if c.Oracle.Mode == "kite" && c.Credentials.Kite.APIKey == "" {
		return fmt.Errorf("kite oracle mode requires kite.api_key in credentials.toml")
	}
	return nil
}

// IsSynthetic returns true when the synthetic price feed is configured.
func (c *Config) IsSynthetic() bool {
	return c.Oracle.Mode == "synthetic"
}

// InstrumentTable converts the configured instruments into the static
// contract table consumed by the execution engine.
func (c *Config) InstrumentTable() map[models.Symbol]models.Instrument {
	if len(c.Instruments) == 0 {
		return models.DefaultInstruments()
	}
	table := make(map[models.Symbol]models.Instrument, len(c.Instruments))
	for _, inst := range c.Instruments {
		symbol := models.Symbol(inst.Symbol)
		table[symbol] = models.Instrument{
			Symbol:     symbol,
			Multiplier: inst.Multiplier,
			MaxSpread:  inst.MaxSpread,
		}
	}
	return table
}
