/*
Package config loads the engine's YAML configuration.

PURPOSE:
  One file, one authoritative source of truth for the three state-machine
  durations (grace, missed, action cutoff), the sweep interval, and the
  server settings. Both the take-action path and the sweeper read the same
  Thresholds value built here; there is no second set of constants.

DURATIONS:
  Expressed as Go duration strings ("30m", "4h"). The historical system
  carried three diverging hardcoded values in different call paths; the
  defaults below are provisional and flagged as a product decision.

EXAMPLE (medtrack.yaml):
  thresholds:
    grace: 30m
    missed: 4h
    action_cutoff: 2h
  sweep:
    enabled: true
    interval: 1m
  reminder_lead: 15m
  times_per_day_cap: 4
  timezone: Local
  server:
    port: 8080
    db: medtrack.db
  logging:
    level: info
    console: true
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/Nishu1044/MedTrack/engine"
)

type Config struct {
	Thresholds     ThresholdsConfig `yaml:"thresholds"`
	Sweep          SweepConfig      `yaml:"sweep"`
	ReminderLead   string           `yaml:"reminder_lead"`
	TimesPerDayCap int              `yaml:"times_per_day_cap"`
	Timezone       string           `yaml:"timezone"`
	Server         ServerConfig     `yaml:"server"`
	Logging        LoggingConfig    `yaml:"logging"`
}

type ThresholdsConfig struct {
	Grace        string `yaml:"grace"`
	Missed       string `yaml:"missed"`
	ActionCutoff string `yaml:"action_cutoff"`
}

type SweepConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	DB   string `yaml:"db"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	enabled := true
	return Config{
		Thresholds: ThresholdsConfig{
			Grace:        "30m",
			Missed:       "4h",
			ActionCutoff: "2h",
		},
		Sweep:          SweepConfig{Enabled: &enabled, Interval: "1m"},
		ReminderLead:   "15m",
		TimesPerDayCap: engine.DefaultTimesPerDayCap,
		Timezone:       "Local",
		Server:         ServerConfig{Port: 8080, DB: "medtrack.db"},
		Logging:        LoggingConfig{Level: "info", Console: true},
	}
}

// Load reads the YAML file at path, layered over defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := c.EngineThresholds(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if _, err := c.ReminderLeadDuration(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.TimesPerDayCap < 1 {
		return fmt.Errorf("times_per_day_cap: must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	return nil
}

// EngineThresholds parses the three durations into an engine.Thresholds.
func (c Config) EngineThresholds() (engine.Thresholds, error) {
	def := engine.DefaultThresholds()
	grace, err := parseDurationField("thresholds.grace", c.Thresholds.Grace, def.Grace)
	if err != nil {
		return engine.Thresholds{}, err
	}
	missed, err := parseDurationField("thresholds.missed", c.Thresholds.Missed, def.Missed)
	if err != nil {
		return engine.Thresholds{}, err
	}
	cutoff, err := parseDurationField("thresholds.action_cutoff", c.Thresholds.ActionCutoff, def.ActionCutoff)
	if err != nil {
		return engine.Thresholds{}, err
	}
	if cutoff > missed {
		return engine.Thresholds{}, fmt.Errorf("thresholds.action_cutoff: must not exceed thresholds.missed")
	}
	return engine.Thresholds{Grace: grace, Missed: missed, ActionCutoff: cutoff}, nil
}

func (c Config) SweepEnabled() bool {
	return c.Sweep.Enabled == nil || *c.Sweep.Enabled
}

func (c Config) SweepInterval() (time.Duration, error) {
	return parseDurationField("sweep.interval", c.Sweep.Interval, time.Minute)
}

func (c Config) ReminderLeadDuration() (time.Duration, error) {
	return parseDurationField("reminder_lead", c.ReminderLead, 15*time.Minute)
}

// Location resolves the reference timezone. "Local" and "" mean the
// process's local zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func parseDurationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", path)
	}
	return d, nil
}
