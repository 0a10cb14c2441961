package fwup

import "time"

// Stage names one step of the update state machine.
type Stage string

const (
	StageStart         Stage = "start"
	StageReset         Stage = "reset device"
	StageClearRegion   Stage = "clear fota region"
	StageWriteMetadata Stage = "write metadata"
	StageTransfer      Stage = "transfer firmware"
	StageInitLoc       Stage = "init loc"
	StageGetVersion    Stage = "get version"
	StageTrigger       Stage = "trigger fwup"
	StageVerifyVersion Stage = "verify version"
	StageDone          Stage = "done"
)

func (s Stage) String() string {
	return string(s)
}

// Progress is passed to the ProgressCallback when a stage starts, after
// every acknowledged chunk and when the run ends.
type Progress struct {
	Stage   Stage
	Variant Variant

	// Chunk is the last acknowledged chunk (1-based), TotalChunks the chunk
	// count of the image.
	Chunk       int
	TotalChunks int

	BytesSent  int64
	TotalBytes int64

	// Percentage is the transfer completion (0.0 to 100.0).
	Percentage float64

	// Verdict is the last verdict seen by the stage, if any.
	Verdict Verdict

	// Result is set on the final event of a run.
	Result UpdateResult

	Elapsed time.Duration
}

// ProgressCallback receives progress events. It runs on the update goroutine
// and should return quickly.
type ProgressCallback func(Progress)
