// Package config loads the batch configuration: a YAML file for
// everything declarative plus a .env file (or the environment) for the
// portal credentials. Every configuration mistake surfaces here, before
// any patient is touched.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/status"
)

// Rule set sources accepted by rules.source.
const (
	RulesSourceFile     = "file"
	RulesSourcePostgres = "postgres"
)

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Portal PortalConfig `mapstructure:"portal"`
	Rules  RulesConfig  `mapstructure:"rules"`
	Intake IntakeConfig `mapstructure:"intake"`
	Status StatusConfig `mapstructure:"status"`
	Output OutputConfig `mapstructure:"output"`
	Serve  ServeConfig  `mapstructure:"serve"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type PortalConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Username          string  `mapstructure:"username"`
	Password          string  `mapstructure:"password"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type RulesConfig struct {
	Source      string `mapstructure:"source"`
	File        string `mapstructure:"file"`
	DatabaseURL string `mapstructure:"database_url"`
}

type IntakeConfig struct {
	File    string         `mapstructure:"file"`
	Mapping intake.Mapping `mapstructure:"mapping"`
}

type StatusConfig struct {
	Markers []status.Marker `mapstructure:"markers"`
}

type OutputConfig struct {
	// Dir may contain a literal {date} placeholder, expanded to the
	// current date at load time.
	Dir        string `mapstructure:"dir"`
	ReportFile string `mapstructure:"report_file"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the configuration file, applies .env and environment
// overrides for the credentials, validates, and expands output paths.
func Load(path string) (*Config, error) {
	// Missing .env is fine; credentials may come from the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("log.level", "info")
	v.SetDefault("rules.source", RulesSourceFile)
	v.SetDefault("rules.file", "rules.yaml")
	v.SetDefault("portal.requests_per_second", 2)
	v.SetDefault("output.dir", "data/{date}")
	v.SetDefault("output.report_file", "outcome.csv")
	v.SetDefault("serve.addr", ":8080")

	v.BindEnv("portal.username", "AUTHFLOW_PORTAL_USERNAME")
	v.BindEnv("portal.password", "AUTHFLOW_PORTAL_PASSWORD")
	v.BindEnv("rules.database_url", "DATABASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Output.Dir = expandDate(cfg.Output.Dir, time.Now())
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Rules.Source {
	case RulesSourceFile:
		if c.Rules.File == "" {
			return fmt.Errorf("rules.file is required when rules.source is %q", RulesSourceFile)
		}
	case RulesSourcePostgres:
		if c.Rules.DatabaseURL == "" {
			return fmt.Errorf("rules.database_url is required when rules.source is %q", RulesSourcePostgres)
		}
	default:
		return fmt.Errorf("unknown rules.source %q", c.Rules.Source)
	}

	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	return nil
}

// Markers returns the configured status marker table, or the default
// one when the config file does not override it.
func (c *Config) Markers() []status.Marker {
	if len(c.Status.Markers) > 0 {
		return c.Status.Markers
	}
	return status.DefaultMarkers()
}

func expandDate(path string, now time.Time) string {
	return strings.ReplaceAll(path, "{date}", now.Format("2006-01-02"))
}
