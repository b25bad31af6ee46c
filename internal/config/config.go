package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"atlas/internal/policy"
	"atlas/internal/walkforward"
	"atlas/types"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

const envPrefix = "ATLAS"

// Config holds all configuration for the backtester
type Config struct {
	PolicyFile string         `mapstructure:"policy_file"`
	Database   DatabaseConfig `mapstructure:"database"`
	Backtest   BacktestConfig `mapstructure:"backtest"`
	Costs      CostConfig     `mapstructure:"costs"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Report     ReportConfig   `mapstructure:"report"`
}

// DatabaseConfig holds the market data and result store connection
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns" validate:"gte=1"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	ConnectRetries uint64        `mapstructure:"connect_retries"`
}

// BacktestConfig holds walk-forward and worker settings
type BacktestConfig struct {
	Train           string  `mapstructure:"train" validate:"required"`
	Validate        string  `mapstructure:"validate" validate:"required"`
	Test            string  `mapstructure:"test" validate:"required"`
	Step            string  `mapstructure:"step" validate:"required"`
	Purge           string  `mapstructure:"purge" validate:"required"`
	WindowWorkers   int     `mapstructure:"window_workers" validate:"gte=1"`
	StrategyWorkers int     `mapstructure:"strategy_workers" validate:"gte=1"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate" validate:"gte=0,lt=1"`
	Interval        string  `mapstructure:"interval" validate:"required"`
	// MaxGap rejects series with a hole wider than this between bars; 0 disables the check.
	MaxGap time.Duration `mapstructure:"max_gap" validate:"gte=0"`
}

// CostConfig holds transaction costs in basis points
type CostConfig struct {
	SpreadBps   float64 `mapstructure:"spread_bps" validate:"gte=0"`
	SlippageBps float64 `mapstructure:"slippage_bps" validate:"gte=0"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// ReportConfig holds output locations
type ReportConfig struct {
	Print       bool   `mapstructure:"print"`
	Dir         string `mapstructure:"dir"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// LoadConfig loads the configuration from an optional file and ATLAS_* environment
// variables, e.g. ATLAS_BACKTEST_WINDOW_WORKERS.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.WindowSpec(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := types.ParseInterval(c.Backtest.Interval); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) WindowSpec() (walkforward.Spec, error) {
	b := c.Backtest
	return walkforward.ParseSpec(b.Train, b.Validate, b.Test, b.Step, b.Purge)
}

// Policy loads the configured policy file, or the built-in policy when none is set.
func (c *Config) Policy() (*policy.Policy, error) {
	if c.PolicyFile == "" {
		p := policy.Default()
		return p, p.Validate()
	}
	return policy.Load(c.PolicyFile)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("policy_file", "")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.connect_retries", 5)

	// Walk-forward defaults
	v.SetDefault("backtest.train", "36mo")
	v.SetDefault("backtest.validate", "6mo")
	v.SetDefault("backtest.test", "1mo")
	v.SetDefault("backtest.step", "1mo")
	v.SetDefault("backtest.purge", "5d")
	v.SetDefault("backtest.window_workers", 4)
	v.SetDefault("backtest.strategy_workers", 2)
	v.SetDefault("backtest.risk_free_rate", 0.0)
	v.SetDefault("backtest.interval", "D")
	v.SetDefault("backtest.max_gap", "168h")

	// Cost defaults
	v.SetDefault("costs.spread_bps", 10.0)
	v.SetDefault("costs.slippage_bps", 10.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Report defaults
	v.SetDefault("report.print", true)
	v.SetDefault("report.dir", "")
	v.SetDefault("report.metrics_file", "")
}
