// Package config loads punchlist settings files and checklist definitions.
package config

import (
	"fmt"
	"time"
)

// Error is a configuration failure: a missing file, unreadable YAML, or a
// structurally invalid document.
type Error struct {
	// Path is the offending file.
	Path string
	// Msg says what was wrong.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Settings represents a punchlist.yaml settings file.
// All values are optional and act as defaults for CLI flags.
// CLI flags always override settings values.
type Settings struct {
	Relay    RelayConfig    `yaml:"relay"`
	Redis    RedisConfig    `yaml:"redis"`
	Surface  SurfaceConfig  `yaml:"surface"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// RelayConfig holds relay endpoint defaults from the settings file.
type RelayConfig struct {
	// Network is "tcp" or "unix".
	Network string `yaml:"network,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// RedisConfig holds Redis store defaults from the settings file.
type RedisConfig struct {
	URL     string   `yaml:"url,omitempty"`
	Prefix  string   `yaml:"prefix,omitempty"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// SurfaceConfig holds reconnect defaults from the settings file.
type SurfaceConfig struct {
	Backoff      BackoffConfig `yaml:"backoff"`
	PollInterval Duration      `yaml:"poll_interval,omitempty"`
}

// BackoffConfig holds reconnect backoff bounds.
type BackoffConfig struct {
	Base        Duration `yaml:"base,omitempty"`
	Max         Duration `yaml:"max,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty"`
}

// TrackingConfig holds form-tracking defaults from the settings file.
type TrackingConfig struct {
	Prune         PruneConfig         `yaml:"prune"`
	URLResolution URLResolutionConfig `yaml:"url_resolution"`
}

// PruneConfig bounds history retention.
type PruneConfig struct {
	MaxItems      int      `yaml:"max_items,omitempty"`
	MaxAge        Duration `yaml:"max_age,omitempty"`
	KeepCompleted bool     `yaml:"keep_completed,omitempty"`
}

// URLResolutionConfig overrides the stored url-resolution settings.
// Pointers distinguish an absent knob from an explicit false or zero.
type URLResolutionConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	Limit   *int  `yaml:"limit,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
