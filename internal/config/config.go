// Package config provides configuration management for the trade tracker.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultDeltaTarget is the short-strike delta used when unset.
	defaultDeltaTarget = 0.10
	// defaultWingWidth is the short-to-long strike distance used when unset.
	defaultWingWidth = 10.0
	// defaultGridPoints is the payoff grid resolution used when unset.
	defaultGridPoints = 200
	// defaultUnderlyingRange is the payoff grid +/- range used when unset.
	defaultUnderlyingRange = 0.20
	// defaultTimezone is the trading venue timezone used when unset.
	defaultTimezone = "America/New_York"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// MarketDataConfig defines market-data API settings.
type MarketDataConfig struct {
	APIKey  string `yaml:"api_key"`
	Sandbox bool   `yaml:"sandbox"`
}

// StrategyConfig defines trade generation parameters.
type StrategyConfig struct {
	Symbols         []string `yaml:"symbols"`
	Types           []string `yaml:"types"` // iron_condor | vertical_spread
	DeltaTarget     float64  `yaml:"delta_target"`
	WingWidth       float64  `yaml:"wing_width"`
	GridPoints      int      `yaml:"grid_points"`
	UnderlyingRange float64  `yaml:"underlying_range"`
}

// ScheduleConfig defines the monitor cadence and venue hours.
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"`
	Timezone      string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart  string `yaml:"trading_start"` // "HH:MM"
	TradingEnd    string `yaml:"trading_end"`   // "HH:MM"
}

// StorageConfig defines where trade state is persisted.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only status server.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
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
	if c.Strategy.DeltaTarget == 0 {
		c.Strategy.DeltaTarget = defaultDeltaTarget
	}
	if c.Strategy.WingWidth == 0 {
		c.Strategy.WingWidth = defaultWingWidth
	}
	if c.Strategy.GridPoints == 0 {
		c.Strategy.GridPoints = defaultGridPoints
	}
	if c.Strategy.UnderlyingRange == 0 {
		c.Strategy.UnderlyingRange = defaultUnderlyingRange
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = "5m"
	}
	if c.Schedule.TradingStart == "" {
		c.Schedule.TradingStart = "09:30"
	}
	if c.Schedule.TradingEnd == "" {
		c.Schedule.TradingEnd = "16:00"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9847
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required")
	}
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols is required")
	}
	if len(c.Strategy.Types) == 0 {
		return fmt.Errorf("strategy.types is required")
	}
	for _, t := range c.Strategy.Types {
		if t != "iron_condor" && t != "vertical_spread" {
			return fmt.Errorf("strategy.types: unsupported type %q", t)
		}
	}
	if c.Strategy.DeltaTarget <= 0 || c.Strategy.DeltaTarget > 0.5 {
		return fmt.Errorf("strategy.delta_target must be in (0, 0.5], got %.3f", c.Strategy.DeltaTarget)
	}
	if c.Strategy.WingWidth <= 0 {
		return fmt.Errorf("strategy.wing_width must be positive, got %.2f", c.Strategy.WingWidth)
	}
	if c.Strategy.GridPoints < 100 {
		return fmt.Errorf("strategy.grid_points must be at least 100, got %d", c.Strategy.GridPoints)
	}
	if c.Strategy.UnderlyingRange <= 0 || c.Strategy.UnderlyingRange >= 1 {
		return fmt.Errorf("strategy.underlying_range must be in (0, 1), got %.2f", c.Strategy.UnderlyingRange)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := time.ParseDuration(c.Schedule.CheckInterval); err != nil {
		return fmt.Errorf("schedule.check_interval: %w", err)
	}
	start, err := time.Parse("15:04", c.Schedule.TradingStart)
	if err != nil {
		return fmt.Errorf("schedule.trading_start: %w", err)
	}
	end, err := time.Parse("15:04", c.Schedule.TradingEnd)
	if err != nil {
		return fmt.Errorf("schedule.trading_end: %w", err)
	}
	if !start.Before(end) {
		return fmt.Errorf("schedule.trading_start must be before trading_end")
	}

	return nil
}

// IsPaperTrading returns true if the tracker targets the sandbox endpoint.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Venue returns the trading venue location. Falls back to a fixed ET
// offset on systems without tzdata.
func (c *Config) Venue() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// GetCheckInterval returns the configured monitor cadence.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CheckInterval)
	if err != nil {
		return 5 * time.Minute // default
	}
	return d
}

// IsWithinTradingHours checks if the given time falls within configured
// venue hours. The end bound is extended to cover the settlement window
// just after the close, so end-of-day marks still run.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.Venue()
	today := now.In(loc)

	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.Parse("15:04", c.Schedule.TradingStart)
	endClock, err2 := time.Parse("15:04", c.Schedule.TradingEnd)
	if err1 != nil || err2 != nil {
		startClock = time.Date(0, 1, 1, 9, 30, 0, 0, time.UTC)
		endClock = time.Date(0, 1, 1, 16, 0, 0, 0, time.UTC)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)
	end = end.Add(5 * time.Minute)

	return !today.Before(start) && today.Before(end)
}
