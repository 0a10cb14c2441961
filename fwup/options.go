package fwup

import (
	"context"
	"io/ioutil"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds how often a transport operation is attempted.
// Protocol outcomes (Nack, NoResponse) are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Timeouts for the response waits of each stage.
type Timeouts struct {
	ChunkAck time.Duration

	V1Version time.Duration
	V1Trigger time.Duration

	V2Version time.Duration
	V2Trigger time.Duration
}

// SettleDelays follow the fire-and-forget control commands.
type SettleDelays struct {
	Reset       time.Duration
	ClearRegion time.Duration
	Metadata    time.Duration
	Init        time.Duration
}

// Config holds the updater configuration.
type Config struct {
	ChunkSize      int
	MetadataOffset int64

	// ResetV1 issues AT$QCRST before a V1 transfer. V2 always resets.
	ResetV1 bool

	Retry        RetryPolicy
	Timeouts     Timeouts
	Settle       SettleDelays
	PollInterval time.Duration

	ProgressCallback ProgressCallback
	Logger           log.FieldLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func defaultConfig() Config {
	return Config{
		ChunkSize:      DefaultChunkSize,
		MetadataOffset: DefaultMetadataOffset,
		Retry: RetryPolicy{
			MaxAttempts: DefaultMaxAttempts,
			Delay:       DefaultRetryDelay,
		},
		Timeouts: Timeouts{
			ChunkAck:  DefaultChunkAckTimeout,
			V1Version: DefaultV1VersionTimeout,
			V1Trigger: DefaultV1TriggerTimeout,
			V2Version: DefaultV2VersionTimeout,
			V2Trigger: DefaultV2TriggerTimeout,
		},
		Settle: SettleDelays{
			Reset:       DefaultResetSettle,
			ClearRegion: DefaultClearRegionSettle,
			Metadata:    DefaultMetadataSettle,
			Init:        DefaultInitSettle,
		},
		PollInterval: DefaultPollInterval,
		Logger:       discardLogger(),
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Option configures an Updater or Channel.
type Option func(*Config)

// WithChunkSize sets the firmware bytes carried per push command.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithMetadataOffset sets the image offset written by the V2 metadata stage.
func WithMetadataOffset(offset int64) Option {
	return func(c *Config) {
		if offset >= 0 {
			c.MetadataOffset = offset
		}
	}
}

// WithV1Reset enables the optional AT$QCRST before a V1 transfer.
func WithV1Reset(reset bool) Option {
	return func(c *Config) {
		c.ResetV1 = reset
	}
}

// WithRetry sets the transport retry policy. At least one attempt is always
// made.
func WithRetry(p RetryPolicy) Option {
	return func(c *Config) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		if p.Delay < 0 {
			p.Delay = 0
		}
		c.Retry = p
	}
}

// WithTimeouts overrides response timeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(c *Config) {
		setIfPositive(&c.Timeouts.ChunkAck, t.ChunkAck)
		setIfPositive(&c.Timeouts.V1Version, t.V1Version)
		setIfPositive(&c.Timeouts.V1Trigger, t.V1Trigger)
		setIfPositive(&c.Timeouts.V2Version, t.V2Version)
		setIfPositive(&c.Timeouts.V2Trigger, t.V2Trigger)
	}
}

// WithSettleDelays overrides the settle delays. Negative fields keep their
// default; zero disables the delay.
func WithSettleDelays(s SettleDelays) Option {
	return func(c *Config) {
		setIfNotNegative(&c.Settle.Reset, s.Reset)
		setIfNotNegative(&c.Settle.ClearRegion, s.ClearRegion)
		setIfNotNegative(&c.Settle.Metadata, s.Metadata)
		setIfNotNegative(&c.Settle.Init, s.Init)
	}
}

// WithPollInterval bounds a single blocking serial read.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithProgressCallback sets a callback receiving progress events.
//
// Example:
//
//	u := fwup.New(transport,
//	    fwup.WithProgressCallback(func(p fwup.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Stage, p.Percentage)
//	    }),
//	)
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = cb
	}
}

// WithLogger sets the logger. TX/RX lines are logged at debug level.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func setIfPositive(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setIfNotNegative(dst *time.Duration, v time.Duration) {
	if v >= 0 {
		*dst = v
	}
}

func discardLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(ioutil.Discard)
	return l
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
