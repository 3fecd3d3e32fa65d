// Package config loads the bridge configuration from a YAML file, the
// environment and built-in defaults, in increasing order of precedence:
// defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/helpers/logging"
	"github.com/schemabounce/waterfall-bridge/references"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WATERFALL_BRIDGE_"

// Config is the complete bridge configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Waterfall  WaterfallConfig  `yaml:"waterfall" json:"waterfall"`
	References ReferencesConfig `yaml:"references" json:"references"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Artifacts  artifacts.Config `yaml:"artifacts" json:"artifacts"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen          string        `yaml:"listen" json:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// MaxUploadBytes bounds import file uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

// WaterfallConfig configures calls to the data service.
type WaterfallConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int           `yaml:"rate_burst" json:"rate_burst"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// ReferencesConfig extends the built-in lookup table.
type ReferencesConfig struct {
	LookupFields  map[string][]string `yaml:"lookup_fields" json:"lookup_fields,omitempty"`
	Plurals       map[string]string   `yaml:"plurals" json:"plurals,omitempty"`
	FallbackField string              `yaml:"fallback_field" json:"fallback_field"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		Waterfall: WaterfallConfig{
			Timeout:   30 * time.Second,
			RateBurst: 1,
			UserAgent: "waterfall-bridge",
		},
		References: ReferencesConfig{
			FallbackField: references.DefaultFallbackField,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment(getenv func(string) string) error {
	if v := getenv(EnvPrefix + "LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Waterfall.Timeout = d
	}
	if v := getenv(EnvPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Waterfall.RateLimit = f
	}
	if v := getenv(EnvPrefix + "RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_BURST: %w", EnvPrefix, err)
		}
		c.Waterfall.RateBurst = n
	}
	if v := getenv(EnvPrefix + "ARTIFACTS_TYPE"); v != "" {
		c.Artifacts.Type = v
	}
	if v := getenv(EnvPrefix + "ARTIFACTS_PATH"); v != "" {
		c.Artifacts.Local.Path = v
	}
	if v := getenv(EnvPrefix + "S3_BUCKET"); v != "" {
		c.Artifacts.S3.Bucket = v
	}
	if v := getenv(EnvPrefix + "POSTGRES_DSN"); v != "" {
		c.Artifacts.Postgres.DSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Waterfall.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("waterfall.timeout must be positive, got %s", c.Waterfall.Timeout))
	}
	if c.Waterfall.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("waterfall.rate_limit must not be negative, got %g", c.Waterfall.RateLimit))
	}
	if c.Waterfall.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("waterfall.rate_burst must be at least 1, got %d", c.Waterfall.RateBurst))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if _, err := artifacts.ParseType(c.Artifacts.Type); err != nil {
		errs = append(errs, fmt.Errorf("artifacts.type: %w", err))
	}
	return errors.Join(errs...)
}

// LookupTable builds the immutable lookup table shared by every export.
func (c *Config) LookupTable() *references.LookupTable {
	return references.NewLookupTable(c.References.LookupFields, c.References.Plurals, c.References.FallbackField)
}

// ClientConfig converts the service settings for waterfall.NewClient.
func (c *Config) ClientConfig(logger hclog.Logger) *waterfall.ClientConfig {
	cc := waterfall.DefaultClientConfig()
	cc.Timeout = c.Waterfall.Timeout
	cc.RateLimit = c.Waterfall.RateLimit
	cc.RateBurst = c.Waterfall.RateBurst
	if c.Waterfall.UserAgent != "" {
		cc.UserAgent = c.Waterfall.UserAgent
	}
	cc.Logger = logger
	return cc
}

// ApplyLogging configures the global logging level and format.
func (c *Config) ApplyLogging() {
	current := logging.CurrentConfiguration()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil && level != hclog.NoLevel {
		current.DefaultLevel = level
	}
	current.JSONFormat = strings.EqualFold(c.Logging.Format, "json")
	logging.Configure(&current)
}

// Effective is the configuration as reported by the /config endpoint.
// Durations are rendered as strings; secrets never appear because their
// fields are excluded from JSON.
func (c *Config) Effective() map[string]any {
	table := c.LookupTable()
	return map[string]any{
		"server": map[string]any{
			"listen":           c.Server.Listen,
			"shutdown_timeout": c.Server.ShutdownTimeout.String(),
			"max_upload_bytes": c.Server.MaxUploadBytes,
		},
		"waterfall": map[string]any{
			"timeout":    c.Waterfall.Timeout.String(),
			"rate_limit": c.Waterfall.RateLimit,
			"rate_burst": c.Waterfall.RateBurst,
			"user_agent": c.Waterfall.UserAgent,
		},
		"references": map[string]any{
			"lookup_fields":  table.Fields(),
			"plurals":        table.Plurals(),
			"fallback_field": table.Fallback(),
		},
		"logging":   c.Logging,
		"artifacts": c.Artifacts,
	}
}
