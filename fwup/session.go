package fwup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"
)

// transfer session states
const (
	transferStIdle        = "idle"
	transferStSending     = "sending"
	transferStAwaitingAck = "awaiting_ack"
	transferStAborted     = "aborted"
	transferStCompleted   = "completed"
)

// transfer session events
const (
	transferEvSend     = "send"
	transferEvSent     = "sent"
	transferEvAbort    = "abort"
	transferEvComplete = "complete"
)

// TransferStatus is the terminal state of a transfer session.
type TransferStatus int

const (
	TransferCompleted TransferStatus = iota
	// TransferAborted means the device answered a chunk with anything but Ack.
	TransferAborted
	// TransferTransportFailure means the link failed after all retries.
	TransferTransportFailure
	// TransferImageFailure means the chunk source could not be read.
	TransferImageFailure
	// TransferCancelled means the context was done.
	TransferCancelled
)

func (s TransferStatus) String() string {
	switch s {
	case TransferCompleted:
		return "completed"
	case TransferAborted:
		return "aborted"
	case TransferTransportFailure:
		return "transport failure"
	case TransferImageFailure:
		return "image failure"
	case TransferCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("transfer status %d", int(s))
}

// TransferOutcome is produced once per session run.
type TransferOutcome struct {
	Status TransferStatus

	// Chunk is the chunk the session stopped at for any status other than
	// TransferCompleted.
	Chunk int

	// Acked is the number of acknowledged chunks, Bytes their payload size.
	Acked int
	Bytes int64

	// Verdict is the response that aborted the session.
	Verdict Verdict

	Err error
}

// Completed reports whether every chunk was acknowledged.
func (o TransferOutcome) Completed() bool {
	return o.Status == TransferCompleted
}

func (o TransferOutcome) String() string {
	switch o.Status {
	case TransferCompleted:
		return fmt.Sprintf("completed (%d chunks, %d bytes)", o.Acked, o.Bytes)
	case TransferAborted:
		return fmt.Sprintf("aborted at chunk %d (%s)", o.Chunk, o.Verdict)
	}
	return fmt.Sprintf("%s at chunk %d: %v", o.Status, o.Chunk, o.Err)
}

// TransferSession pushes chunks strictly one at a time: send, wait for Ack,
// advance. Any other verdict aborts the whole session.
type TransferSession struct {
	link    Link
	dialect *Dialect
	config  Config
	log     log.FieldLogger

	// TotalBytes is used for progress reporting only.
	TotalBytes int64

	fsm *fsm.FSM
}

// NewTransferSession returns a session pushing chunks over link in the
// dialect d.
func NewTransferSession(link Link, d *Dialect, opts ...Option) *TransferSession {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newTransferSession(link, d, cfg)
}

func newTransferSession(link Link, d *Dialect, cfg Config) *TransferSession {
	s := &TransferSession{
		link:    link,
		dialect: d,
		config:  cfg,
		log:     cfg.Logger.WithField("variant", d.Variant().String()),
	}
	s.fsm = fsm.NewFSM(
		transferStIdle,
		fsm.Events{
			{Name: transferEvSend, Src: []string{transferStIdle, transferStAwaitingAck}, Dst: transferStSending},
			{Name: transferEvSent, Src: []string{transferStSending}, Dst: transferStAwaitingAck},
			{Name: transferEvAbort, Src: []string{transferStSending, transferStAwaitingAck}, Dst: transferStAborted},
			{Name: transferEvComplete, Src: []string{transferStIdle, transferStAwaitingAck}, Dst: transferStCompleted},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				s.log.WithFields(log.Fields{"event": e.Event, "from": e.Src, "to": e.Dst}).Trace("transfer state change")
			},
		},
	)
	return s
}

// State returns the current session state.
func (s *TransferSession) State() string {
	return s.fsm.Current()
}

// Run pushes every chunk of src in order. It never returns TransferCompleted
// unless chunks 1..N were each acknowledged. A session runs once; a second
// call fails.
func (s *TransferSession) Run(ctx context.Context, src *ChunkSource) TransferOutcome {
	if !s.fsm.Is(transferStIdle) {
		return TransferOutcome{
			Status: TransferImageFailure,
			Err:    fmt.Errorf("transfer session already ran, state %s", s.fsm.Current()),
		}
	}

	started := s.config.now()
	var out TransferOutcome
	for {
		if err := ctx.Err(); err != nil {
			return s.abort(out, TransferCancelled, out.Acked+1, NoResponse, err)
		}

		chunk, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.abort(out, TransferImageFailure, out.Acked+1, NoResponse, err)
		}

		s.event(transferEvSend)
		if err := s.link.Send(ctx, s.dialect.PushChunk(chunk)); err != nil {
			return s.abort(out, failureStatus(ctx, err), chunk.Seq, NoResponse, err)
		}
		s.event(transferEvSent)

		verdict, err := s.link.ReceiveVerdict(ctx, s.config.Timeouts.ChunkAck)
		if err != nil {
			return s.abort(out, failureStatus(ctx, err), chunk.Seq, verdict, err)
		}
		if verdict != Ack {
			return s.abort(out, TransferAborted, chunk.Seq, verdict, &ChunkAbortError{Seq: chunk.Seq, Verdict: verdict})
		}

		out.Acked = chunk.Seq
		out.Bytes += int64(chunk.Size)
		s.log.WithFields(log.Fields{"chunk": chunk.Seq, "size": chunk.Size}).Debug("chunk acknowledged")
		s.report(out, src.Total(), s.config.now().Sub(started))
	}

	s.event(transferEvComplete)
	out.Status = TransferCompleted
	s.log.WithFields(log.Fields{"chunks": out.Acked, "bytes": out.Bytes}).Info("firmware transfer completed")
	return out
}

func (s *TransferSession) abort(out TransferOutcome, status TransferStatus, chunk int, v Verdict, err error) TransferOutcome {
	if s.fsm.Can(transferEvAbort) {
		s.event(transferEvAbort)
	}
	out.Status = status
	out.Chunk = chunk
	out.Verdict = v
	out.Err = err
	s.log.WithError(err).WithFields(log.Fields{"chunk": chunk, "status": status.String()}).Error("firmware transfer aborted")
	return out
}

// event fires a transition. Transitions are fixed by Run, so a failure is a
// programming error.
func (s *TransferSession) event(name string) {
	if err := s.fsm.Event(name); err != nil {
		panic(fmt.Sprintf("transfer session: event %s in state %s: %v", name, s.fsm.Current(), err))
	}
}

func (s *TransferSession) report(out TransferOutcome, total int, elapsed time.Duration) {
	cb := s.config.ProgressCallback
	if cb == nil {
		return
	}
	p := Progress{
		Stage:       StageTransfer,
		Variant:     s.dialect.Variant(),
		Chunk:       out.Acked,
		TotalChunks: total,
		BytesSent:   out.Bytes,
		TotalBytes:  s.TotalBytes,
		Verdict:     Ack,
		Elapsed:     elapsed,
	}
	if s.TotalBytes > 0 {
		p.Percentage = float64(out.Bytes) / float64(s.TotalBytes) * 100
	}
	cb(p)
}

func failureStatus(ctx context.Context, err error) TransferStatus {
	if ctx.Err() != nil && !IsTransportError(err) {
		return TransferCancelled
	}
	return TransferTransportFailure
}
