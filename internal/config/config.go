// Package config loads the bus/locator/logging configuration surface
// (spec §6), the same nested-YAML-plus-env-override shape as
// sagostin-goefidash/internal/server.Config, trimmed to what a headless
// bus driver needs (no dashboard display/vehicle/drivetrain sections, no
// JSON PATCH merge endpoint since there is no UI to serve it).
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to open a bus, run discovery, and
// optionally log statistics.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Locator LocatorConfig `yaml:"locator"`
	Logging LoggingConfig `yaml:"logging"`

	path string
}

// BusConfig describes the physical serial link and timing parameters
// (spec §6).
type BusConfig struct {
	Port                   string `yaml:"port"`
	Baud                   int    `yaml:"baud"`
	TimeoutMs              int    `yaml:"timeout_ms"`
	DeviceProcessingTimeMs int    `yaml:"device_processing_time_ms"`
}

// LocatorConfig describes binary-search timing and default scan range
// (spec §6).
type LocatorConfig struct {
	DelayTimeMs     int  `yaml:"delay_time_ms"`
	OnlyUnaddressed bool `yaml:"only_unaddressed"`
	ScanFirst       int  `yaml:"scan_first"`
	ScanLast        int  `yaml:"scan_last"`
	StopOnMissing   bool `yaml:"stop_on_missing"`
}

// LoggingConfig describes the optional CSV statistics sink
// (internal/busstat).
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	IntervalMs int    `yaml:"interval_ms"`
}

// DefaultConfig returns a config with the defaults named in spec §6
// ("device_processing_time (seconds, default 1 ms)", "delay_time
// (default 5 ms)").
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Port:                   "/dev/ttyBus0",
			Baud:                   115200,
			TimeoutMs:              50,
			DeviceProcessingTimeMs: 1,
		},
		Locator: LocatorConfig{
			DelayTimeMs:     5,
			OnlyUnaddressed: false,
			ScanFirst:       1,
			ScanLast:        127,
			StopOnMissing:   false,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Path:       "/var/log/busmaster",
			IntervalMs: 1000,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and
// environment variable overrides. Falls back to defaults if the file is
// missing or malformed.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets process
// environment variables that aren't already set.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads BUS_PORT, BUS_BAUD, BUS_TIMEOUT_MS,
// LOCATOR_DELAY_MS, LOCATOR_STOP_ON_MISSING, LOG_ENABLED, LOG_PATH, and
// LOG_INTERVAL_MS, mirroring the teacher's applyEnvOverrides shape.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BUS_PORT"); v != "" {
		c.Bus.Port = v
	}
	if v := os.Getenv("BUS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bus.Baud = n
		}
	}
	if v := os.Getenv("BUS_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bus.TimeoutMs = n
		}
	}
	if v := os.Getenv("LOCATOR_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Locator.DelayTimeMs = n
		}
	}
	if v := os.Getenv("LOCATOR_STOP_ON_MISSING"); v != "" {
		c.Locator.StopOnMissing = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.IntervalMs = n
		}
	}
}
