package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iridescent115/qcfwup/fwup"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "qcfwup")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "qcfwup.yaml")
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	yaml := `serial_port: /dev/ttyUSB2
variant: v1
baud_rate: 921600
chunk_size: 512
metadata_offset: 1024
reset_v1: true
trigger: false
poll_interval: 250ms

retry:
  max_attempts: 3
  delay: 1s

timeouts:
  chunk_ack: 30s
  v1:
    version: 12s
    trigger: 2h
  v2:
    version: 20s
    trigger: 90s

settle:
  reset: 8s
  clear_region: 3s
  metadata: 0s
  init: 6s

log:
  level: debug
  format: json
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SerialPort != "/dev/ttyUSB2" || cfg.Variant != "v1" {
		t.Errorf("serial_port/variant = %q/%q", cfg.SerialPort, cfg.Variant)
	}
	if cfg.BaudRate != 921600 || cfg.ChunkSize != 512 || cfg.MetadataOffset != 1024 {
		t.Errorf("baud/chunk/offset = %d/%d/%d", cfg.BaudRate, cfg.ChunkSize, cfg.MetadataOffset)
	}
	if !cfg.ResetV1 {
		t.Error("expected reset_v1=true")
	}
	if cfg.Trigger == nil || *cfg.Trigger {
		t.Errorf("trigger = %v, want explicit false", cfg.Trigger)
	}

	durations := []struct {
		field string
		got   Duration
		want  time.Duration
	}{
		{"poll_interval", cfg.PollInterval, 250 * time.Millisecond},
		{"retry.delay", cfg.Retry.Delay, time.Second},
		{"timeouts.chunk_ack", cfg.Timeouts.ChunkAck, 30 * time.Second},
		{"timeouts.v1.version", cfg.Timeouts.V1.Version, 12 * time.Second},
		{"timeouts.v1.trigger", cfg.Timeouts.V1.Trigger, 2 * time.Hour},
		{"timeouts.v2.version", cfg.Timeouts.V2.Version, 20 * time.Second},
		{"timeouts.v2.trigger", cfg.Timeouts.V2.Trigger, 90 * time.Second},
		{"settle.reset", cfg.Settle.Reset, 8 * time.Second},
		{"settle.clear_region", cfg.Settle.ClearRegion, 3 * time.Second},
		{"settle.metadata", cfg.Settle.Metadata, 0},
		{"settle.init", cfg.Settle.Init, 6 * time.Second},
	}
	for _, d := range durations {
		if d.got.Duration != d.want {
			t.Errorf("%s = %v, want %v", d.field, d.got.Duration, d.want)
		}
	}

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "serial_port: COM7\ntimeouts:\n  v2:\n    trigger: 2m\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if cfg.SerialPort != "COM7" {
		t.Errorf("serial_port = %q", cfg.SerialPort)
	}
	if cfg.Timeouts.V2.Trigger.Duration != 2*time.Minute {
		t.Errorf("timeouts.v2.trigger = %v", cfg.Timeouts.V2.Trigger)
	}
	if cfg.Timeouts.V2.Version != def.Timeouts.V2.Version || cfg.Timeouts.ChunkAck != def.Timeouts.ChunkAck {
		t.Error("unset timeouts lost their defaults")
	}
	if cfg.Variant != "v2" || cfg.ChunkSize != fwup.DefaultChunkSize || cfg.Retry.MaxAttempts != fwup.DefaultMaxAttempts {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if cfg.Trigger != nil {
		t.Error("trigger set although absent from file")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	os.Setenv("QCFWUP_TEST_PORT", "/dev/ttyACM3")
	defer os.Unsetenv("QCFWUP_TEST_PORT")
	os.Unsetenv("QCFWUP_TEST_UNSET")

	cfg, err := Load(writeTemp(t, "serial_port: ${QCFWUP_TEST_PORT}\nvariant: ${QCFWUP_TEST_UNSET:-v1}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SerialPort != "/dev/ttyACM3" {
		t.Errorf("serial_port = %q", cfg.SerialPort)
	}
	if cfg.Variant != "v1" {
		t.Errorf("variant = %q, want default from expansion", cfg.Variant)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid yaml", "serial_port: [", "invalid YAML"},
		{"invalid duration", "retry:\n  delay: soon\n", "invalid duration"},
		{"unknown variant", "variant: v9\n", "unknown protocol variant"},
		{"zero chunk size", "chunk_size: 0\n", "chunk_size"},
		{"no attempts", "retry:\n  max_attempts: 0\n", "max_attempts"},
		{"negative settle", "settle:\n  reset: -1s\n", "settle.reset"},
		{"zero timeout", "timeouts:\n  chunk_ack: 0s\n", "timeouts.chunk_ack"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(os.TempDir(), "qcfwup-does-not-exist.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("QCFWUP_A", "alpha")
	os.Setenv("QCFWUP_EMPTY", "")
	defer os.Unsetenv("QCFWUP_A")
	defer os.Unsetenv("QCFWUP_EMPTY")

	tests := []struct {
		in   string
		want string
	}{
		{"${QCFWUP_A}", "alpha"},
		{"x-${QCFWUP_A}-y", "x-alpha-y"},
		{"${QCFWUP_EMPTY:-fallback}", "fallback"},
		{"${QCFWUP_NOPE}", ""},
		{"$QCFWUP_A", "$QCFWUP_A"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.ChunkSize = 256
	cfg.ResetV1 = true
	cfg.Retry = RetryConfig{MaxAttempts: 2, Delay: D(3 * time.Second)}
	cfg.Timeouts.V1.Trigger = D(time.Hour)
	cfg.Settle.Init = D(0)

	var got fwup.Config
	for _, opt := range cfg.Options() {
		opt(&got)
	}

	if got.ChunkSize != 256 || !got.ResetV1 || got.MetadataOffset != fwup.DefaultMetadataOffset {
		t.Errorf("config = %+v", got)
	}
	if got.Retry.MaxAttempts != 2 || got.Retry.Delay != 3*time.Second {
		t.Errorf("retry = %+v", got.Retry)
	}
	if got.Timeouts.V1Trigger != time.Hour || got.Timeouts.ChunkAck != fwup.DefaultChunkAckTimeout {
		t.Errorf("timeouts = %+v", got.Timeouts)
	}
	if got.Settle.Init != 0 || got.Settle.Reset != fwup.DefaultResetSettle {
		t.Errorf("settle = %+v", got.Settle)
	}
	if got.PollInterval != fwup.DefaultPollInterval {
		t.Errorf("poll interval = %v", got.PollInterval)
	}
}
