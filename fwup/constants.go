package fwup

import "time"

// Serial link parameters shared by both dialects.
const (
	DefaultBaudRate = 115200

	// CRLF terminates every outbound AT command.
	CRLF = "\r\n"
)

// Transfer defaults. A 1024 byte chunk expands to roughly 5.2KB of ASCII on
// the wire.
const (
	DefaultChunkSize = 1024

	// DefaultMetadataOffset is the FOTA region offset written by the V2
	// metadata stage.
	DefaultMetadataOffset = 512
)

// Retry policy for transport faults.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 2 * time.Second
)

// Response timeouts.
const (
	DefaultChunkAckTimeout = 20 * time.Second

	DefaultV1VersionTimeout = 10 * time.Second
	DefaultV1TriggerTimeout = 10000 * time.Second

	DefaultV2VersionTimeout = 15 * time.Second
	DefaultV2TriggerTimeout = 50 * time.Second

	// DefaultPollInterval bounds a single blocking read while waiting for a
	// response line, so cancellation is observed between polls.
	DefaultPollInterval = 500 * time.Millisecond
)

// Settle delays after fire-and-forget control commands. The device sends no
// acknowledgement for these, so the stage is assumed complete once the delay
// has elapsed.
const (
	DefaultResetSettle       = 5 * time.Second
	DefaultClearRegionSettle = 2 * time.Second
	DefaultMetadataSettle    = 2 * time.Second
	DefaultInitSettle        = 5 * time.Second
)

// V1 command set, tunnelled through the generic QLOCTEST test command.
const (
	v1PushChunkFmt  = `AT+QLOCTEST="locWriteDataToQCX217NVM dataSize %d data %s"`
	v1InitCmd       = `AT+QLOCTEST="locInit"`
	v1GetVersionCmd = `AT+QLOCTEST="locGetFWVersion"`
	v1TriggerFmt    = `AT+QLOCTEST="locTriggerFWUP fwBinarySize %d"`
)

// V2 command set.
const (
	v2PushChunkFmt   = "AT$QCLOCGNSSPUSHFWBIN =%d, %s"
	v2ClearRegionCmd = "AT$QCLOCGNSSFWUPOPTIONS=2"
	v2MetadataFmt    = "AT$QCLOCGNSSFWUPOPTIONS=1,%d,%d"
	v2GetVersionCmd  = "AT$QCLOCGNSSGETFWVERSION"
	v2TriggerCmd     = "AT$QCLOCGNSSTRIGGERFWUP"
)

// ResetCmd restarts the QCX217 companion chip. Both dialects use it.
const ResetCmd = "AT$QCRST"

// Response markers, matched as substrings of a received line.
const (
	MarkerV1Ack         = "LOC_AT: OK"
	MarkerV1Nack        = "LOC_AT: NOK"
	MarkerV1FwupSuccess = "LOC_AT: QCG110 firmware upgrade success!!"
	MarkerV1FwupFail    = "LOC_AT: QCG110 firmware upgrade fail!!"

	MarkerV2Ack         = "$QCLOCGNSSPUSHFWBIN: SUCCESS"
	MarkerV2FwupSuccess = "$QCLOCGNSSTRIGGERFWUP: FWUP SUCCESS"
	MarkerV2Version     = "$QCLOCGNSSGETFWVERSION: SW version"
	MarkerV2FwupFail    = "$QCLOCGNSSTRIGGERFWUP: FWUP FAIL"
	MarkerCmeError      = "+CME ERROR"
)
