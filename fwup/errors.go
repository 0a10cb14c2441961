package fwup

import (
	"errors"
	"fmt"
)

// Transport operations reported in TransportError.Op.
const (
	OpOpen       = "open"
	OpWrite      = "write"
	OpFlush      = "flush"
	OpSetTimeout = "set read timeout"
	OpRead       = "read"
)

// ImageReadError indicates the firmware image could not be read.
type ImageReadError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *ImageReadError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("read firmware image %s at offset %d: %v", e.Path, e.Offset, e.Err)
	}
	return fmt.Sprintf("read firmware image %s: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// TransportError indicates the serial link failed. Attempts is set once the
// retry budget is spent.
type TransportError struct {
	Op       string
	Port     string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("serial %s %s: %v", e.Op, e.Port, e.Err)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// ChunkAbortError indicates the device did not acknowledge a chunk.
type ChunkAbortError struct {
	Seq     int
	Verdict Verdict
}

func (e *ChunkAbortError) Error() string {
	return fmt.Sprintf("chunk %d not acknowledged: got %s", e.Seq, e.Verdict)
}

// StageError indicates a stage of the update state machine failed. Err is set
// for transport or cancellation failures, Verdict otherwise.
type StageError struct {
	Stage   Stage
	Verdict Verdict
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: device answered %s", e.Stage, e.Verdict)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
