package fwup

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// UpdateResult is the overall outcome of one update run.
type UpdateResult int

const (
	Success UpdateResult = iota
	// TransferFailed means a stage up to and including the transfer failed.
	// No trigger command was sent.
	TransferFailed
	// TriggerFailed means the trigger stage could not be completed: the
	// device rejected a command or the link failed.
	TriggerFailed
	// FwupDeviceReportedFailure means the device reported the update failed
	// or never reported an outcome.
	FwupDeviceReportedFailure
	// Cancelled means the context was done before the run finished.
	Cancelled
)

func (r UpdateResult) String() string {
	switch r {
	case Success:
		return "success"
	case TransferFailed:
		return "transfer failed"
	case TriggerFailed:
		return "trigger failed"
	case FwupDeviceReportedFailure:
		return "device reported failure"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("update result %d", int(r))
}

// Report summarizes an update run.
type Report struct {
	Result  UpdateResult
	Variant Variant

	// Stage is the last stage entered. On failure it is the failing stage.
	Stage Stage

	Transfer TransferOutcome

	// Triggered is set once the trigger command was sent.
	Triggered bool

	Elapsed time.Duration
}

// Updater drives the staged firmware update of a QCX217 companion chip over
// AT commands.
type Updater struct {
	transport Transport
	config    Config

	// linkFor builds the link speaking d. Replaced in tests.
	linkFor func(d *Dialect) Link
}

// New returns an updater talking over transport.
//
// Example:
//
//	u := fwup.New(fwup.NewSerialTransport("/dev/ttyUSB2", fwup.DefaultBaudRate),
//	    fwup.WithLogger(log.StandardLogger()),
//	)
//	report, err := u.Run(ctx, img, fwup.V2, true)
func New(transport Transport, opts ...Option) *Updater {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	u := &Updater{transport: transport, config: cfg}
	u.linkFor = func(d *Dialect) Link {
		return newChannel(u.transport, d, u.config)
	}
	return u
}

// Run executes the stage plan of variant for img. The trigger stages run only
// when trigger is set. The returned error is nil only for Success.
func (u *Updater) Run(ctx context.Context, img *Image, variant Variant, trigger bool) (Report, error) {
	report := Report{Variant: variant, Stage: StageStart}
	report.Result = TransferFailed
	if img == nil {
		return report, errors.New("no firmware image")
	}
	dialect, err := DialectFor(variant)
	if err != nil {
		return report, err
	}

	r := &run{
		Updater: u,
		ctx:     ctx,
		img:     img,
		dialect: dialect,
		link:    u.linkFor(dialect),
		report:  &report,
		started: u.config.now(),
		log: u.config.Logger.WithFields(log.Fields{
			"variant": variant.String(),
			"image":   img.Name,
		}),
	}

	r.log.WithFields(log.Fields{
		"size":    img.Size(),
		"crc":     fmt.Sprintf("%#04x", img.CRC()),
		"trigger": trigger,
	}).Info("starting firmware update")
	r.emit(StageStart, NoResponse)

	err = r.execute(dialect.Plan(trigger, u.config.ResetV1))
	report.Elapsed = u.config.now().Sub(r.started)
	if err != nil {
		report.Result = r.classify(err)
		r.log.WithError(err).WithField("result", report.Result.String()).Error("firmware update failed")
	} else {
		report.Result = Success
		r.log.WithField("elapsed", report.Elapsed.Round(time.Second)).Info("firmware update finished")
	}

	p := r.progress(StageDone, NoResponse)
	p.Result = report.Result
	r.notify(p)
	return report, err
}

// run is the state of one Updater.Run.
type run struct {
	*Updater
	ctx     context.Context
	img     *Image
	dialect *Dialect
	link    Link
	report  *Report
	started time.Time
	log     log.FieldLogger

	triggerPhase bool
}

func (r *run) execute(plan []Stage) error {
	for _, stage := range plan {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		r.report.Stage = stage
		r.log.WithField("stage", stage.String()).Info("entering stage")
		r.emit(stage, NoResponse)

		var err error
		switch stage {
		case StageReset:
			err = r.fireAndSettle(stage, r.dialect.Reset(), r.config.Settle.Reset)
		case StageClearRegion:
			err = r.fireAndSettle(stage, r.dialect.ClearRegion(), r.config.Settle.ClearRegion)
		case StageWriteMetadata:
			err = r.fireAndSettle(stage, r.dialect.Metadata(r.config.MetadataOffset, r.img.Size()), r.config.Settle.Metadata)
		case StageTransfer:
			err = r.transfer()
		case StageInitLoc:
			r.triggerPhase = true
			err = r.fireAndSettle(stage, r.dialect.InitLoc(), r.config.Settle.Init)
		case StageGetVersion:
			r.triggerPhase = true
			err = r.queryVersion(stage)
		case StageVerifyVersion:
			err = r.verifyVersion()
		case StageTrigger:
			r.triggerPhase = true
			err = r.trigger()
			if err != nil && r.dialect.VerifiesAfterFailure() && r.ctx.Err() == nil {
				// the result stays the trigger failure
				r.verifyVersion()
			}
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fireAndSettle sends a control command the device does not acknowledge and
// waits for it to take effect.
func (r *run) fireAndSettle(stage Stage, cmd Command, settle time.Duration) error {
	if err := r.link.Send(r.ctx, cmd); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := r.config.sleep(r.ctx, settle); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (r *run) transfer() error {
	src, err := r.img.Chunks(r.config.ChunkSize)
	if err != nil {
		return &StageError{Stage: StageTransfer, Err: err}
	}

	session := newTransferSession(r.link, r.dialect, r.config)
	session.TotalBytes = r.img.Size()
	out := session.Run(r.ctx, src)
	r.report.Transfer = out
	if out.Completed() {
		return nil
	}
	if out.Err != nil {
		return &StageError{Stage: StageTransfer, Verdict: out.Verdict, Err: out.Err}
	}
	return &StageError{Stage: StageTransfer, Verdict: out.Verdict}
}

// queryVersion asks for the running firmware version. The answer is
// informational; only link failures stop the run.
func (r *run) queryVersion(stage Stage) error {
	if err := r.link.Send(r.ctx, r.dialect.GetVersion()); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	v, err := r.link.ReceiveVerdict(r.ctx, r.dialect.versionTimeout(r.config.Timeouts))
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if !r.dialect.IsVersionReply(v) {
		r.log.WithFields(log.Fields{"stage": stage.String(), "verdict": v.String()}).Warn("no firmware version reported")
	}
	r.emit(stage, v)
	return nil
}

// verifyVersion queries the version after the trigger wait. Failures are
// logged only.
func (r *run) verifyVersion() error {
	err := r.queryVersion(StageVerifyVersion)
	if err != nil && r.ctx.Err() == nil {
		r.log.WithError(err).Warn("could not verify firmware version after update")
		return nil
	}
	return err
}

// trigger starts the on-device update and waits for its outcome.
// Acknowledgements of the trigger command itself are skipped.
func (r *run) trigger() error {
	if err := r.link.Send(r.ctx, r.dialect.Trigger(r.img.Size())); err != nil {
		return &StageError{Stage: StageTrigger, Err: err}
	}
	r.report.Triggered = true

	deadline := r.config.now().Add(r.dialect.triggerTimeout(r.config.Timeouts))
	for {
		remaining := deadline.Sub(r.config.now())
		if remaining <= 0 {
			return &StageError{Stage: StageTrigger, Verdict: NoResponse}
		}
		v, err := r.link.ReceiveVerdict(r.ctx, remaining)
		if err != nil {
			return &StageError{Stage: StageTrigger, Err: err}
		}

		switch v {
		case Ack, VersionReport:
			r.log.WithField("verdict", v.String()).Debug("waiting for update outcome")
			continue
		case FwupSuccess:
			r.emit(StageTrigger, v)
			return nil
		default:
			return &StageError{Stage: StageTrigger, Verdict: v}
		}
	}
}

// classify maps a failed run to its result.
func (r *run) classify(err error) UpdateResult {
	if r.ctx.Err() != nil && !IsTransportError(err) {
		return Cancelled
	}
	if !r.triggerPhase {
		return TransferFailed
	}

	var se *StageError
	if errors.As(err, &se) && se.Err == nil {
		switch se.Verdict {
		case FwupFail, NoResponse:
			return FwupDeviceReportedFailure
		}
	}
	return TriggerFailed
}

func (r *run) progress(stage Stage, v Verdict) Progress {
	out := r.report.Transfer
	p := Progress{
		Stage:       stage,
		Variant:     r.dialect.Variant(),
		Chunk:       out.Acked,
		TotalChunks: r.img.NumChunks(r.config.ChunkSize),
		BytesSent:   out.Bytes,
		TotalBytes:  r.img.Size(),
		Verdict:     v,
		Elapsed:     r.config.now().Sub(r.started),
	}
	if p.TotalBytes > 0 {
		p.Percentage = float64(p.BytesSent) / float64(p.TotalBytes) * 100
	}
	return p
}

func (r *run) emit(stage Stage, v Verdict) {
	r.notify(r.progress(stage, v))
}

func (r *run) notify(p Progress) {
	if r.config.ProgressCallback != nil {
		r.config.ProgressCallback(p)
	}
}
