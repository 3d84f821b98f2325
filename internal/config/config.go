// Package config provides configuration management for the simulator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/paperbtc/turntrader/internal/fees"
	"github.com/paperbtc/turntrader/internal/models"
)

const (
	// anchorLayout is the user-facing anchor format, interpreted in the
	// configured timezone.
	anchorLayout = "2006-01-02 15:04"

	defaultSymbol       = "BTC-USD"
	defaultStartingCash = 10000.0
	defaultInterval     = "5m"
	defaultLookback     = "6h"
	defaultTimeout      = "10s"
	defaultPort         = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Session     SessionConfig     `yaml:"session"`
	Provider    ProviderConfig    `yaml:"provider"`
	Fees        FeesConfig        `yaml:"fees"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines runtime environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// SessionConfig defines the trading session parameters.
type SessionConfig struct {
	Symbol       string  `yaml:"symbol"`
	StartingCash float64 `yaml:"starting_cash"`
	Interval     string  `yaml:"interval"` // 5m | 10m | 15m | 30m | 1h
	// Anchor is "2006-01-02 15:04" in Timezone. Empty means one hour ago.
	Anchor   string `yaml:"anchor"`
	Timezone string `yaml:"timezone"`
	Lookback string `yaml:"lookback"` // duration, first-turn fetch window
}

// ProviderConfig defines the candle data source.
type ProviderConfig struct {
	Source  string        `yaml:"source"` // yahoo | synthetic
	BaseURL string        `yaml:"base_url"`
	Timeout string        `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig bounds fetch retries.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// FeesConfig overrides the synthetic fee schedule. Zero values fall back to
// the defaults.
type FeesConfig struct {
	MakerRate           float64 `yaml:"maker_rate"`
	TakerRate           float64 `yaml:"taker_rate"`
	NetworkBase         float64 `yaml:"network_base"`
	NetworkCap          float64 `yaml:"network_cap"`
	CongestionThreshold float64 `yaml:"congestion_threshold"`
	CongestionScale     float64 `yaml:"congestion_scale"`
	CongestionCap       float64 `yaml:"congestion_cap"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines the optional session snapshot dump.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Session.Symbol == "" {
		c.Session.Symbol = defaultSymbol
	}
	if c.Session.StartingCash == 0 {
		c.Session.StartingCash = defaultStartingCash
	}
	if c.Session.Interval == "" {
		c.Session.Interval = defaultInterval
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "UTC"
	}
	if c.Session.Lookback == "" {
		c.Session.Lookback = defaultLookback
	}
	if c.Provider.Source == "" {
		c.Provider.Source = "yahoo"
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = defaultTimeout
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}

	if c.Session.StartingCash < 0 {
		return fmt.Errorf("session.starting_cash must be >= 0")
	}
	if _, err := models.ParseInterval(c.Session.Interval); err != nil {
		return fmt.Errorf("session.interval invalid: %w", err)
	}
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	if c.Session.Anchor != "" {
		if _, err := time.ParseInLocation(anchorLayout, c.Session.Anchor, loc); err != nil {
			return fmt.Errorf("session.anchor must be %q: %w", anchorLayout, err)
		}
	}
	if _, err := time.ParseDuration(c.Session.Lookback); err != nil {
		return fmt.Errorf("session.lookback invalid: %w", err)
	}

	if c.Provider.Source != "yahoo" && c.Provider.Source != "synthetic" {
		return fmt.Errorf("provider.source must be 'yahoo' or 'synthetic'")
	}
	if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
		return fmt.Errorf("provider.timeout invalid: %w", err)
	}
	for name, d := range map[string]string{
		"provider.retry.initial_backoff": c.Provider.Retry.InitialBackoff,
		"provider.retry.max_backoff":     c.Provider.Retry.MaxBackoff,
		"provider.breaker.interval":      c.Provider.Breaker.Interval,
		"provider.breaker.timeout":       c.Provider.Breaker.Timeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
	}
	if c.Provider.Retry.MaxRetries < 0 {
		return fmt.Errorf("provider.retry.max_retries must be >= 0")
	}
	if c.Provider.Breaker.FailureRatio < 0 || c.Provider.Breaker.FailureRatio > 1 {
		return fmt.Errorf("provider.breaker.failure_ratio must be in [0,1]")
	}

	if c.Fees.MakerRate < 0 || c.Fees.TakerRate < 0 {
		return fmt.Errorf("fee rates must be >= 0")
	}
	if c.Fees.NetworkBase < 0 || c.Fees.NetworkCap < 0 {
		return fmt.Errorf("network fees must be >= 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535]")
	}

	return nil
}

// AnchorTime resolves the session anchor in UTC. An empty anchor means one
// hour before now, snapped down to the candle interval.
func (c *Config) AnchorTime(now time.Time) (time.Time, error) {
	iv, err := models.ParseInterval(c.Session.Interval)
	if err != nil {
		return time.Time{}, err
	}

	if c.Session.Anchor == "" {
		return now.UTC().Add(-time.Hour).Truncate(iv.Duration()), nil
	}

	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading timezone: %w", err)
	}
	t, err := time.ParseInLocation(anchorLayout, c.Session.Anchor, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing anchor: %w", err)
	}
	return t.UTC(), nil
}

// GetInterval returns the parsed candle interval.
func (c *Config) GetInterval() models.Interval {
	iv, err := models.ParseInterval(c.Session.Interval)
	if err != nil {
		return models.Interval5m
	}
	return iv
}

// GetLookback returns the first-turn lookback window.
func (c *Config) GetLookback() time.Duration {
	d, err := time.ParseDuration(c.Session.Lookback)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// GetProviderTimeout returns the per-fetch timeout.
func (c *Config) GetProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// FeeSchedule builds the fee schedule, falling back to defaults for unset
// fields.
func (c *Config) FeeSchedule() fees.Schedule {
	s := fees.DefaultSchedule()
	if c.Fees.MakerRate > 0 {
		s.MakerRate = c.Fees.MakerRate
	}
	if c.Fees.TakerRate > 0 {
		s.TakerRate = c.Fees.TakerRate
	}
	if c.Fees.NetworkBase > 0 {
		s.NetworkBase = c.Fees.NetworkBase
	}
	if c.Fees.NetworkCap > 0 {
		s.NetworkCap = c.Fees.NetworkCap
	}
	if c.Fees.CongestionThreshold > 0 {
		s.CongestionThreshold = c.Fees.CongestionThreshold
	}
	if c.Fees.CongestionScale > 0 {
		s.CongestionScale = c.Fees.CongestionScale
	}
	if c.Fees.CongestionCap > 0 {
		s.CongestionCap = c.Fees.CongestionCap
	}
	return s
}
