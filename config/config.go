// Package config loads server and engine configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// WEG_* environment variables. The result is validated once; engine
// settings are handed to settlement and plausibility as explicit values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/weg-settlement/plausibility"
	"github.com/warp/weg-settlement/settlement"
)

// Config is the complete process configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Log          LogConfig          `yaml:"log"`
	Settlement   SettlementConfig   `yaml:"settlement"`
	Plausibility PlausibilityConfig `yaml:"plausibility"`
	AI           AIConfig           `yaml:"ai"`
	Sweep        SweepConfig        `yaml:"sweep"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"WEG_PORT" validate:"min=1,max=65535"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"WEG_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"WEG_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	DemoData        bool          `yaml:"demo_data" env:"WEG_DEMO_DATA"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"WEG_DB_PATH" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"WEG_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" env:"WEG_LOG_FORMAT" validate:"oneof=json text"`
}

// SettlementConfig mirrors settlement.Config. Amounts are strings so they
// stay exact through YAML and env parsing.
type SettlementConfig struct {
	TaxRate               string   `yaml:"tax_rate" env:"WEG_TAX_RATE" validate:"required,numeric"`
	TaxCap                string   `yaml:"tax_cap" env:"WEG_TAX_CAP" validate:"required,numeric"`
	TaxDeductibleAccounts []string `yaml:"tax_deductible_accounts" env:"WEG_TAX_DEDUCTIBLE_ACCOUNTS"`
	MinYear               int      `yaml:"min_year" env:"WEG_MIN_YEAR" validate:"min=1900"`
	Concurrency           int      `yaml:"concurrency" env:"WEG_CONCURRENCY" validate:"min=1,max=256"`
}

// PlausibilityConfig mirrors plausibility.Thresholds.
type PlausibilityConfig struct {
	CostShareTolerance string `yaml:"cost_share_tolerance_pp" env:"WEG_COST_SHARE_TOLERANCE" validate:"required,numeric"`
	TaxRatioWarning    string `yaml:"tax_ratio_warning" env:"WEG_TAX_RATIO_WARNING" validate:"required,numeric"`
	HeatingWarning     string `yaml:"heating_warning" env:"WEG_HEATING_WARNING" validate:"required,numeric"`
	FeedbackLimit      int    `yaml:"feedback_limit" env:"WEG_FEEDBACK_LIMIT" validate:"min=0,max=100"`
}

// AIConfig configures the optional AI plausibility provider.
type AIConfig struct {
	Enabled bool          `yaml:"enabled" env:"WEG_AI_ENABLED"`
	URL     string        `yaml:"url" env:"WEG_AI_URL" validate:"required_if=Enabled true"`
	APIKey  string        `yaml:"-" env:"WEG_AI_API_KEY"`
	Model   string        `yaml:"model" env:"WEG_AI_MODEL" validate:"required_if=Enabled true"`
	Timeout time.Duration `yaml:"timeout" env:"WEG_AI_TIMEOUT" validate:"gt=0"`
}

// SweepConfig configures the background validation of last year's inputs.
type SweepConfig struct {
	Enabled     bool          `yaml:"enabled" env:"WEG_SWEEP_ENABLED"`
	Interval    time.Duration `yaml:"interval" env:"WEG_SWEEP_INTERVAL" validate:"gt=0"`
	Communities []string      `yaml:"communities" env:"WEG_SWEEP_COMMUNITIES" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration.
func Default() Config {
	th := plausibility.DefaultThresholds()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "weg.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Settlement: SettlementConfig{
			TaxRate:     "0.20",
			TaxCap:      "1200.00",
			MinYear:     2000,
			Concurrency: 8,
		},
		Plausibility: PlausibilityConfig{
			CostShareTolerance: th.CostShareTolerance.String(),
			TaxRatioWarning:    th.TaxRatioWarning.String(),
			HeatingWarning:     th.HeatingWarning.StringFixed(2),
			FeedbackLimit:      th.FeedbackLimit,
		},
		AI: AIConfig{
			Model:   "gpt-4o-mini",
			Timeout: th.AITimeout,
		},
		Sweep: SweepConfig{
			Interval: time.Hour,
		},
	}
}

// Load applies path (optional) and the environment over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and the engine-level invariants.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, len(fieldErrs))
			for i, fe := range fieldErrs {
				msgs[i] = fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	sc, err := c.EngineConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	return nil
}

// EngineConfig converts the settlement section.
func (c Config) EngineConfig() (settlement.Config, error) {
	rate, err := decimal.NewFromString(c.Settlement.TaxRate)
	if err != nil {
		return settlement.Config{}, fmt.Errorf("invalid config: tax_rate: %w", err)
	}
	taxCap, err := decimal.NewFromString(c.Settlement.TaxCap)
	if err != nil {
		return settlement.Config{}, fmt.Errorf("invalid config: tax_cap: %w", err)
	}
	return settlement.Config{
		TaxRate:               rate,
		TaxCap:                taxCap,
		TaxDeductibleAccounts: c.Settlement.TaxDeductibleAccounts,
		MinYear:               c.Settlement.MinYear,
		Concurrency:           c.Settlement.Concurrency,
	}, nil
}

// Thresholds converts the plausibility section.
func (c Config) Thresholds() (plausibility.Thresholds, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid config: %s: %w", name, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("invalid config: %s must not be negative", name)
		}
		return d, nil
	}

	tolerance, err := parse("cost_share_tolerance_pp", c.Plausibility.CostShareTolerance)
	if err != nil {
		return plausibility.Thresholds{}, err
	}
	ratio, err := parse("tax_ratio_warning", c.Plausibility.TaxRatioWarning)
	if err != nil {
		return plausibility.Thresholds{}, err
	}
	heating, err := parse("heating_warning", c.Plausibility.HeatingWarning)
	if err != nil {
		return plausibility.Thresholds{}, err
	}
	return plausibility.Thresholds{
		CostShareTolerance: tolerance,
		TaxRatioWarning:    ratio,
		HeatingWarning:     heating,
		AITimeout:          c.AI.Timeout,
		FeedbackLimit:      c.Plausibility.FeedbackLimit,
	}, nil
}

// Provider returns the configured AI provider, or nil when disabled.
func (c Config) Provider() plausibility.Provider {
	if !c.AI.Enabled {
		return nil
	}
	return plausibility.NewHTTPProvider(plausibility.HTTPProviderConfig{
		URL:    c.AI.URL,
		APIKey: c.AI.APIKey,
		Model:  c.AI.Model,
	})
}
