package fwup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const readBufferSize = 256

// Port is an opened serial session. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser

	// Drain blocks until all written data has been transmitted.
	Drain() error

	// SetReadTimeout bounds the next Read. A Read that times out returns
	// 0, nil.
	SetReadTimeout(t time.Duration) error
}

// Transport opens a fresh Port for every channel operation. The link is
// never held open across operations.
type Transport interface {
	Open() (Port, error)
	Name() string
}

// Link is the command/response surface the transfer session and the updater
// drive.
type Link interface {
	Send(ctx context.Context, cmd Command) error
	ReceiveVerdict(ctx context.Context, timeout time.Duration) (Verdict, error)
}

// Channel sends AT commands and waits for classified responses over a
// Transport, retrying transport faults.
type Channel struct {
	transport Transport
	dialect   *Dialect
	config    Config
	log       log.FieldLogger

	// lines holds input read but not yet consumed by a receive
	lines lineSplitter
}

// NewChannel returns a channel speaking dialect d over t.
func NewChannel(t Transport, d *Dialect, opts ...Option) *Channel {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newChannel(t, d, cfg)
}

func newChannel(t Transport, d *Dialect, cfg Config) *Channel {
	if t == nil {
		panic("transport cannot be nil")
	}
	return &Channel{
		transport: t,
		dialect:   d,
		config:    cfg,
		log: cfg.Logger.WithFields(log.Fields{
			"port":    t.Name(),
			"variant": d.Variant().String(),
		}),
	}
}

// Send writes cmd followed by CRLF in its own port session.
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.withRetry(ctx, "send", func() error {
		return c.send(cmd)
	})
}

// ReceiveVerdict reads response lines until one matches a marker of the
// channel's dialect or timeout elapses. The deadline is measured from the
// call, retries included. Expiry yields NoResponse with a nil error.
func (c *Channel) ReceiveVerdict(ctx context.Context, timeout time.Duration) (Verdict, error) {
	deadline := c.config.now().Add(timeout)
	verdict := NoResponse
	err := c.withRetry(ctx, "receive", func() error {
		var err error
		verdict, err = c.receive(ctx, deadline)
		return err
	})
	return verdict, err
}

func (c *Channel) send(cmd Command) error {
	port, err := c.transport.Open()
	if err != nil {
		return c.transportError(OpOpen, err)
	}
	defer c.release(port)

	if _, err := port.Write([]byte(cmd.Text + CRLF)); err != nil {
		return c.transportError(OpWrite, err)
	}
	if err := port.Drain(); err != nil {
		return c.transportError(OpFlush, err)
	}

	c.log.WithField("len", len(cmd.Text)).Debugf("[TX]: %s", abbreviate(cmd.Text))
	return nil
}

func (c *Channel) receive(ctx context.Context, deadline time.Time) (Verdict, error) {
	port, err := c.transport.Open()
	if err != nil {
		return NoResponse, c.transportError(OpOpen, err)
	}
	defer c.release(port)

	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return NoResponse, err
		}

		// lines left over from the previous receive come first
		for {
			raw, ok := c.lines.next()
			if !ok {
				break
			}
			if v, ok := c.classify(raw); ok {
				return v, nil
			}
		}

		remaining := deadline.Sub(c.config.now())
		if remaining <= 0 {
			return NoResponse, nil
		}
		wait := c.config.PollInterval
		if remaining < wait {
			wait = remaining
		}
		if err := port.SetReadTimeout(wait); err != nil {
			return NoResponse, c.transportError(OpSetTimeout, err)
		}

		n, err := port.Read(buf)
		if err != nil {
			return NoResponse, c.transportError(OpRead, err)
		}
		if n > 0 {
			c.lines.feed(buf[:n])
			continue
		}

		// line went idle without a terminator; the rest may still follow
		if partial := c.lines.partial(); partial != nil && c.matches(partial) {
			v, _ := c.classify(partial)
			c.lines.reset()
			return v, nil
		}
	}
}

func (c *Channel) classify(raw []byte) (Verdict, bool) {
	if !utf8.Valid(raw) {
		c.log.WithField("bytes", len(raw)).Debug("[RX]: skipping undecodable line")
		return NoResponse, false
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return NoResponse, false
	}

	v, ok := c.dialect.Classify(line)
	entry := c.log
	if ok {
		entry = entry.WithField("verdict", v.String())
	}
	entry.Debugf("[RX]: %s", abbreviate(line))
	return v, ok
}

// matches reports whether raw carries a marker, without logging it.
func (c *Channel) matches(raw []byte) bool {
	if !utf8.Valid(raw) {
		return false
	}
	_, ok := c.dialect.Classify(strings.TrimSpace(string(raw)))
	return ok
}

// withRetry runs fn up to MaxAttempts times while it fails with a
// *TransportError, sleeping Delay between attempts.
func (c *Channel) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := c.config.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var te *TransportError
		if !errors.As(err, &te) {
			return err
		}

		c.log.WithError(err).WithField("disconnected", IsDisconnected(te.Err)).Warnf("%s retry %d/%d", op, attempt, attempts)
		if attempt == attempts {
			te.Attempts = attempt
			break
		}
		if serr := c.config.sleep(ctx, c.config.Retry.Delay); serr != nil {
			return serr
		}
	}
	return err
}

func (c *Channel) transportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Port: c.transport.Name(), Err: err}
}

// release closes port on every exit path. Close failures are not fatal; the
// next operation opens a fresh session anyway.
func (c *Channel) release(port Port) {
	if err := port.Close(); err != nil {
		c.log.WithError(err).Debug("closing port failed")
	}
}

// lineSplitter assembles newline terminated lines from raw reads.
type lineSplitter struct {
	pending []byte
}

func (l *lineSplitter) feed(p []byte) {
	l.pending = append(l.pending, p...)
}

// next pops the next complete line.
func (l *lineSplitter) next() ([]byte, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return nil, false
	}
	line := make([]byte, i)
	copy(line, l.pending[:i])
	l.pending = l.pending[i+1:]
	return line, true
}

// partial returns the unterminated tail without consuming it, or nil.
func (l *lineSplitter) partial() []byte {
	if len(bytes.TrimSpace(l.pending)) == 0 {
		return nil
	}
	return l.pending
}

func (l *lineSplitter) reset() {
	l.pending = nil
}

// abbreviate keeps push commands readable in debug logs.
func abbreviate(s string) string {
	const max = 96
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
