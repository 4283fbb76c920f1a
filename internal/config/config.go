package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const minHeartbeatTimeout = 100 * time.Millisecond

// Config represents the complete FlightCheck configuration
type Config struct {
	Connection     ConnectionConfig     `yaml:"connection"`
	Mission        MissionConfig        `yaml:"mission"`
	Timeouts       TimeoutsConfig       `yaml:"timeouts"`
	BatteryCheck   BatteryCheckConfig   `yaml:"batteryCheck"`
	Home           HomeConfig           `yaml:"home"`
	PositionReport PositionReportConfig `yaml:"positionReport"`
	Logging        LoggingConfig        `yaml:"logging"`
	Recorder       RecorderConfig       `yaml:"recorder"`
}

// ConnectionConfig holds MAVLink link settings
type ConnectionConfig struct {
	Address          string   `yaml:"address"`
	SystemID         int      `yaml:"systemId"`
	MavlinkVersion   int      `yaml:"mavlinkVersion"`
	CommandTimeout   Duration `yaml:"commandTimeout"`
	CommandRetries   int      `yaml:"commandRetries"`
	HeartbeatTimeout Duration `yaml:"heartbeatTimeout"`
}

// MissionConfig selects the mission variant and per-step overrides
type MissionConfig struct {
	Variant string          `yaml:"variant"`
	Steps   map[string]bool `yaml:"steps"`
}

// TimeoutsConfig bounds every telemetry wait. Zero waits forever.
type TimeoutsConfig struct {
	Connect     Duration `yaml:"connect"`
	Battery     Duration `yaml:"battery"`
	Calibration Duration `yaml:"calibration"`
	GPSFix      Duration `yaml:"gpsFix"`
	Home        Duration `yaml:"home"`
	Airborne    Duration `yaml:"airborne"`
	Landed      Duration `yaml:"landed"`
	Position    Duration `yaml:"position"`
}

// BatteryCheckConfig sets how long battery samples are watched after the
// first one. Zero decides on the first sample.
type BatteryCheckConfig struct {
	Window Duration `yaml:"window"`
}

type HomeConfig struct {
	// RequireInAir keeps the original "in air and has fix" condition before
	// setting the home point.
	RequireInAir bool `yaml:"requireInAir"`
}

type PositionReportConfig struct {
	Samples int `yaml:"samples"`
}

// LoggingConfig holds diagnostic log settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// RecorderConfig enables the SQLite flight recorder when Path is set
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// Duration is a time.Duration written as a string ("5s", "2m") in YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load builds the configuration from defaults, the optional file at path and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Address:          "udp://:14540",
			SystemID:         10,
			MavlinkVersion:   2,
			CommandTimeout:   Duration(5 * time.Second),
			CommandRetries:   5,
			HeartbeatTimeout: Duration(3 * time.Second),
		},
		Mission: MissionConfig{
			Variant: "full",
		},
		Timeouts: TimeoutsConfig{
			Connect:     Duration(60 * time.Second),
			Battery:     Duration(30 * time.Second),
			Calibration: Duration(3 * time.Minute),
			GPSFix:      Duration(2 * time.Minute),
			Home:        Duration(30 * time.Second),
			Airborne:    Duration(30 * time.Second),
			Landed:      Duration(2 * time.Minute),
			Position:    Duration(30 * time.Second),
		},
		BatteryCheck: BatteryCheckConfig{
			Window: Duration(2 * time.Second),
		},
		Home: HomeConfig{
			RequireInAir: true,
		},
		PositionReport: PositionReportConfig{
			Samples: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if address := os.Getenv("FLIGHTCHECK_ADDRESS"); address != "" {
		cfg.Connection.Address = address
	}

	if variant := os.Getenv("FLIGHTCHECK_VARIANT"); variant != "" {
		cfg.Mission.Variant = variant
	}

	if level := os.Getenv("FLIGHTCHECK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks value ranges. Step names are checked by the mission package.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Connection.Address) == "" {
		return fmt.Errorf("connection address is required")
	}

	if c.Connection.SystemID < 1 || c.Connection.SystemID > 255 {
		return fmt.Errorf("invalid system id %d: must be 1-255", c.Connection.SystemID)
	}

	if c.Connection.MavlinkVersion != 1 && c.Connection.MavlinkVersion != 2 {
		return fmt.Errorf("invalid mavlink version %d: must be 1 or 2", c.Connection.MavlinkVersion)
	}

	if c.Connection.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}

	if c.Connection.CommandRetries < 1 {
		return fmt.Errorf("command retries must be at least 1, got %d", c.Connection.CommandRetries)
	}

	if c.Connection.HeartbeatTimeout.Std() < minHeartbeatTimeout {
		return fmt.Errorf("heartbeat timeout must be at least %s, got %s", minHeartbeatTimeout, c.Connection.HeartbeatTimeout.Std())
	}

	if c.BatteryCheck.Window < 0 {
		return fmt.Errorf("battery check window must not be negative")
	}

	timeouts := map[string]Duration{
		"connect":     c.Timeouts.Connect,
		"battery":     c.Timeouts.Battery,
		"calibration": c.Timeouts.Calibration,
		"gpsFix":      c.Timeouts.GPSFix,
		"home":        c.Timeouts.Home,
		"airborne":    c.Timeouts.Airborne,
		"landed":      c.Timeouts.Landed,
		"position":    c.Timeouts.Position,
	}
	for name, d := range timeouts {
		if d < 0 {
			return fmt.Errorf("timeout %s must not be negative", name)
		}
	}

	if c.PositionReport.Samples < 0 {
		return fmt.Errorf("position report samples must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	return nil
}
