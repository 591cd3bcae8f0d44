package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/oracle"
	"github.com/sells-group/usage-insight/internal/scan"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Oracle   OracleConfig   `yaml:"oracle" mapstructure:"oracle"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OracleConfig configures the AI anomaly reviewer.
type OracleConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	Model            string  `yaml:"model" mapstructure:"model"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxTokens        int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnalysisConfig tunes scanning and suggestion generation.
type AnalysisConfig struct {
	LookbackMonths       int           `yaml:"lookback_months" mapstructure:"lookback_months"`
	EnergyLookbackMonths int           `yaml:"energy_lookback_months" mapstructure:"energy_lookback_months"`
	MinHistory           int           `yaml:"min_history" mapstructure:"min_history"`
	MaxSuggestions       int           `yaml:"max_suggestions" mapstructure:"max_suggestions"`
	Ceilings             CeilingConfig `yaml:"ceilings" mapstructure:"ceilings"`
}

// CeilingConfig holds the per-kind usage that is always treated as extreme.
type CeilingConfig struct {
	Electricity float64 `yaml:"electricity" mapstructure:"electricity"`
	Gas         float64 `yaml:"gas" mapstructure:"gas"`
	Water       float64 `yaml:"water" mapstructure:"water"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("USAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "usage.db")
	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.timeout_secs", 30)
	v.SetDefault("oracle.max_retries", 2)
	v.SetDefault("oracle.retry_backoff_ms", 500)
	v.SetDefault("oracle.max_backoff_ms", 5000)
	v.SetDefault("oracle.max_tokens", 1000)
	v.SetDefault("oracle.temperature", 0.3)
	v.SetDefault("oracle.rate_per_sec", 0)
	v.SetDefault("oracle.burst", 1)
	v.SetDefault("oracle.failure_threshold", 5)
	v.SetDefault("oracle.reset_timeout_secs", 60)
	v.SetDefault("oracle.concurrency", 1)
	v.SetDefault("analysis.lookback_months", scan.DefaultLookbackMonths)
	v.SetDefault("analysis.energy_lookback_months", scan.DefaultEnergyLookbackMonths)
	v.SetDefault("analysis.min_history", 3)
	v.SetDefault("analysis.max_suggestions", 10)
	v.SetDefault("analysis.ceilings.electricity", 2000)
	v.SetDefault("analysis.ceilings.gas", 500)
	v.SetDefault("analysis.ceilings.water", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "detect", "compare":
		// Pure computation over the input file.
	case "scan", "analyze", "costs", "household", "device", "import", "migrate", "serve":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "scan" || mode == "analyze" || mode == "serve" {
		errs = append(errs, c.validateOracle()...)
		errs = append(errs, c.validateAnalysis()...)
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateOracle() []string {
	if !c.Oracle.Enabled {
		return nil
	}
	var errs []string
	if c.Oracle.APIKey == "" {
		errs = append(errs, "oracle.api_key is required when oracle.enabled")
	}
	if c.Oracle.Model == "" {
		errs = append(errs, "oracle.model is required when oracle.enabled")
	}
	if c.Oracle.TimeoutSecs <= 0 {
		errs = append(errs, "oracle.timeout_secs must be > 0")
	}
	if c.Oracle.MaxRetries < 0 {
		errs = append(errs, "oracle.max_retries must be >= 0")
	}
	if c.Oracle.RetryBackoffMs < 0 || c.Oracle.MaxBackoffMs < 0 {
		errs = append(errs, "oracle backoff must be >= 0")
	}
	if c.Oracle.Concurrency < 1 || c.Oracle.Concurrency > 16 {
		errs = append(errs, "oracle.concurrency must be between 1 and 16")
	}
	return errs
}

func (c *Config) validateAnalysis() []string {
	var errs []string
	if c.Analysis.LookbackMonths <= 0 || c.Analysis.EnergyLookbackMonths <= 0 {
		errs = append(errs, "analysis lookback months must be > 0")
	}
	if c.Analysis.MinHistory < 1 {
		errs = append(errs, "analysis.min_history must be >= 1")
	}
	if c.Analysis.MaxSuggestions < 0 {
		errs = append(errs, "analysis.max_suggestions must be >= 0")
	}
	return errs
}

// OracleSettings converts the oracle section into the adapter's settings.
func (c *Config) OracleSettings() oracle.Config {
	return oracle.Config{
		APIKey:           c.Oracle.APIKey,
		Model:            c.Oracle.Model,
		BaseURL:          c.Oracle.BaseURL,
		Timeout:          time.Duration(c.Oracle.TimeoutSecs) * time.Second,
		MaxRetries:       c.Oracle.MaxRetries,
		RetryBackoff:     time.Duration(c.Oracle.RetryBackoffMs) * time.Millisecond,
		MaxBackoff:       time.Duration(c.Oracle.MaxBackoffMs) * time.Millisecond,
		MaxTokens:        c.Oracle.MaxTokens,
		Temperature:      c.Oracle.Temperature,
		RatePerSec:       c.Oracle.RatePerSec,
		Burst:            c.Oracle.Burst,
		FailureThreshold: c.Oracle.FailureThreshold,
		ResetTimeout:     time.Duration(c.Oracle.ResetTimeoutSecs) * time.Second,
	}
}

// ScanOptions returns the scanner options implied by the analysis section.
func (c *Config) ScanOptions() []scan.Option {
	return []scan.Option{
		scan.WithCeilings(map[model.EnergyKind]float64{
			model.EnergyElectricity: c.Analysis.Ceilings.Electricity,
			model.EnergyGas:         c.Analysis.Ceilings.Gas,
			model.EnergyWater:       c.Analysis.Ceilings.Water,
		}),
		scan.WithMinHistory(c.Analysis.MinHistory),
		scan.WithConcurrency(c.Oracle.Concurrency),
	}
}

// AnalysisSettings converts the analysis section into service settings.
func (c *Config) AnalysisSettings() analysis.Config {
	return analysis.Config{
		LookbackMonths: c.Analysis.EnergyLookbackMonths,
		MaxSuggestions: c.Analysis.MaxSuggestions,
		UseAI:          c.Oracle.Enabled,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
