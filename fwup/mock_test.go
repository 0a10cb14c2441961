package fwup

import (
	"context"
	"errors"
	"strings"
	"time"
)

// fakeClock replaces time.Now and the settle/retry sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func withClock(c *fakeClock) Option {
	return func(cfg *Config) {
		cfg.now = c.now
		cfg.sleep = c.sleep
	}
}

// MockModem simulates the AT port of a module. Every written command is
// recorded; the response function decides which lines the module answers.
// A read with nothing buffered advances the clock by the read timeout.
type MockModem struct {
	clock   *fakeClock
	respond func(cmd string) []string

	sent    []string
	pending []byte
	opens   int
	closes  int

	openErrs  int // number of Open calls that fail
	writeErrs int // number of Write calls that fail
	readErr   error

	readTimeout time.Duration

	// script is delivered one entry per Read once pending is empty; an
	// empty entry is an idle read
	script []string
}

func NewMockModem(clock *fakeClock, respond func(cmd string) []string) *MockModem {
	if respond == nil {
		respond = func(string) []string { return nil }
	}
	return &MockModem{clock: clock, respond: respond}
}

func (m *MockModem) Name() string {
	return "/dev/mock0"
}

func (m *MockModem) Open() (Port, error) {
	m.opens++
	if m.openErrs > 0 {
		m.openErrs--
		return nil, errors.New("no such device")
	}
	return &mockPort{m: m}, nil
}

// Queue appends raw bytes to the module output.
func (m *MockModem) Queue(s string) {
	m.pending = append(m.pending, s...)
}

// Sent returns the recorded commands starting with prefix.
func (m *MockModem) Sent(prefix string) []string {
	var out []string
	for _, c := range m.sent {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type mockPort struct {
	m *MockModem
}

func (p *mockPort) Write(b []byte) (int, error) {
	m := p.m
	if m.writeErrs > 0 {
		m.writeErrs--
		return 0, errors.New("input/output error")
	}
	cmd := strings.TrimSuffix(string(b), CRLF)
	m.sent = append(m.sent, cmd)
	for _, line := range m.respond(cmd) {
		m.Queue(line + "\r\n")
	}
	return len(b), nil
}

func (p *mockPort) Read(b []byte) (int, error) {
	m := p.m
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.pending) == 0 && len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		m.Queue(next)
	}
	if len(m.pending) == 0 {
		m.clock.t = m.clock.t.Add(m.readTimeout)
		return 0, nil
	}
	n := copy(b, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (p *mockPort) Drain() error {
	return nil
}

func (p *mockPort) SetReadTimeout(t time.Duration) error {
	p.m.readTimeout = t
	return nil
}

func (p *mockPort) Close() error {
	p.m.closes++
	return nil
}

// scriptedLink is a Link returning a fixed verdict sequence, for tests that
// do not care about the wire.
type scriptedLink struct {
	clock    *fakeClock
	verdicts []Verdict
	sent     []Command
	receives int

	// sendErr is returned for commands starting with failPrefix
	failPrefix string
	sendErr    error
	recvErr    error
}

func (l *scriptedLink) Send(ctx context.Context, cmd Command) error {
	if l.sendErr != nil && strings.HasPrefix(cmd.Text, l.failPrefix) {
		return l.sendErr
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *scriptedLink) ReceiveVerdict(ctx context.Context, timeout time.Duration) (Verdict, error) {
	l.receives++
	if l.recvErr != nil {
		return NoResponse, l.recvErr
	}
	if len(l.verdicts) == 0 {
		if l.clock != nil {
			l.clock.t = l.clock.t.Add(timeout)
		}
		return NoResponse, nil
	}
	v := l.verdicts[0]
	l.verdicts = l.verdicts[1:]
	return v, nil
}

// ackAll answers every command like a healthy module would.
func ackAll(cmd string) []string {
	switch {
	case strings.HasPrefix(cmd, "AT$QCLOCGNSSPUSHFWBIN"):
		return []string{"", MarkerV2Ack, "OK"}
	case strings.HasPrefix(cmd, `AT+QLOCTEST="locWriteDataToQCX217NVM`):
		return []string{MarkerV1Ack}
	case cmd == v2GetVersionCmd:
		return []string{MarkerV2Version + ": 1.2.3", "OK"}
	case cmd == v1GetVersionCmd:
		return []string{"LOC_AT: version 1.2.3", MarkerV1Ack}
	case cmd == v2TriggerCmd:
		return []string{"OK", MarkerV2FwupSuccess}
	case strings.HasPrefix(cmd, `AT+QLOCTEST="locTriggerFWUP`):
		return []string{MarkerV1Ack, MarkerV1FwupSuccess}
	}
	return []string{"OK"}
}

func testImage(size int) *Image {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return NewImage("test.bin", data)
}
