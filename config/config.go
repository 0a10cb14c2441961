// Package config loads fwup settings from a YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/Iridescent115/qcfwup/fwup"
	"github.com/pkg/errors"
)

// Config mirrors the flash command flags. Flags given on the command line
// override values from the file.
type Config struct {
	SerialPort     string         `yaml:"serial_port"`
	Variant        string         `yaml:"variant"`
	BaudRate       int            `yaml:"baud_rate"`
	ChunkSize      int            `yaml:"chunk_size"`
	MetadataOffset int64          `yaml:"metadata_offset"`
	ResetV1        bool           `yaml:"reset_v1"`
	Trigger        *bool          `yaml:"trigger,omitempty"`
	PollInterval   Duration       `yaml:"poll_interval"`
	Retry          RetryConfig    `yaml:"retry"`
	Timeouts       TimeoutsConfig `yaml:"timeouts"`
	Settle         SettleConfig   `yaml:"settle"`
	Log            LogConfig      `yaml:"log"`
}

// RetryConfig is the transport retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Delay       Duration `yaml:"delay"`
}

// TimeoutsConfig holds the response timeouts.
type TimeoutsConfig struct {
	ChunkAck Duration       `yaml:"chunk_ack"`
	V1       VariantTimeout `yaml:"v1"`
	V2       VariantTimeout `yaml:"v2"`
}

// VariantTimeout holds the version query and trigger timeouts of a variant.
type VariantTimeout struct {
	Version Duration `yaml:"version"`
	Trigger Duration `yaml:"trigger"`
}

// SettleConfig holds the delays after unacknowledged control commands.
type SettleConfig struct {
	Reset       Duration `yaml:"reset"`
	ClearRegion Duration `yaml:"clear_region"`
	Metadata    Duration `yaml:"metadata"`
	Init        Duration `yaml:"init"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "20s", "2h45m").
type Duration struct {
	time.Duration
}

// D returns a Duration of d.
func D(d time.Duration) Duration {
	return Duration{d}
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

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the settings used when no config file is given.
func Default() *Config {
	return &Config{
		Variant:        fwup.V2.String(),
		BaudRate:       fwup.DefaultBaudRate,
		ChunkSize:      fwup.DefaultChunkSize,
		MetadataOffset: fwup.DefaultMetadataOffset,
		PollInterval:   D(fwup.DefaultPollInterval),
		Retry: RetryConfig{
			MaxAttempts: fwup.DefaultMaxAttempts,
			Delay:       D(fwup.DefaultRetryDelay),
		},
		Timeouts: TimeoutsConfig{
			ChunkAck: D(fwup.DefaultChunkAckTimeout),
			V1: VariantTimeout{
				Version: D(fwup.DefaultV1VersionTimeout),
				Trigger: D(fwup.DefaultV1TriggerTimeout),
			},
			V2: VariantTimeout{
				Version: D(fwup.DefaultV2VersionTimeout),
				Trigger: D(fwup.DefaultV2TriggerTimeout),
			},
		},
		Settle: SettleConfig{
			Reset:       D(fwup.DefaultResetSettle),
			ClearRegion: D(fwup.DefaultClearRegionSettle),
			Metadata:    D(fwup.DefaultMetadataSettle),
			Init:        D(fwup.DefaultInitSettle),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values the updater cannot work with.
func (c *Config) Validate() error {
	if _, err := fwup.ParseVariant(c.Variant); err != nil {
		return err
	}
	if c.BaudRate <= 0 {
		return errors.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.ChunkSize <= 0 {
		return errors.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MetadataOffset < 0 {
		return errors.Errorf("metadata_offset must not be negative, got %d", c.MetadataOffset)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	for name, d := range map[string]Duration{
		"retry.delay":         c.Retry.Delay,
		"settle.reset":        c.Settle.Reset,
		"settle.clear_region": c.Settle.ClearRegion,
		"settle.metadata":     c.Settle.Metadata,
		"settle.init":         c.Settle.Init,
	} {
		if d.Duration < 0 {
			return errors.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	for name, d := range map[string]Duration{
		"poll_interval":       c.PollInterval,
		"timeouts.chunk_ack":  c.Timeouts.ChunkAck,
		"timeouts.v1.version": c.Timeouts.V1.Version,
		"timeouts.v1.trigger": c.Timeouts.V1.Trigger,
		"timeouts.v2.version": c.Timeouts.V2.Version,
		"timeouts.v2.trigger": c.Timeouts.V2.Trigger,
	} {
		if d.Duration <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Options converts the config into updater options.
func (c *Config) Options() []fwup.Option {
	return []fwup.Option{
		fwup.WithChunkSize(c.ChunkSize),
		fwup.WithMetadataOffset(c.MetadataOffset),
		fwup.WithV1Reset(c.ResetV1),
		fwup.WithPollInterval(c.PollInterval.Duration),
		fwup.WithRetry(fwup.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			Delay:       c.Retry.Delay.Duration,
		}),
		fwup.WithTimeouts(fwup.Timeouts{
			ChunkAck:  c.Timeouts.ChunkAck.Duration,
			V1Version: c.Timeouts.V1.Version.Duration,
			V1Trigger: c.Timeouts.V1.Trigger.Duration,
			V2Version: c.Timeouts.V2.Version.Duration,
			V2Trigger: c.Timeouts.V2.Trigger.Duration,
		}),
		fwup.WithSettleDelays(fwup.SettleDelays{
			Reset:       c.Settle.Reset.Duration,
			ClearRegion: c.Settle.ClearRegion.Duration,
			Metadata:    c.Settle.Metadata.Duration,
			Init:        c.Settle.Init.Duration,
		}),
	}
}
