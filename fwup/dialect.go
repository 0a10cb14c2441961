package fwup

import (
	"fmt"
	"strings"
	"time"
)

// Variant selects one of the two incompatible AT command dialects.
type Variant int

const (
	// V1 tunnels the transfer through AT+QLOCTEST="locWriteDataToQCX217NVM ...".
	V1 Variant = iota + 1
	// V2 uses the dedicated AT$QCLOCGNSS command set with a metadata stage.
	V2
)

func (v Variant) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant accepts "v1"/"v2" (case-insensitive) or "1"/"2".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1", "qloctest":
		return V1, nil
	case "v2", "2", "qclocgnss":
		return V2, nil
	}
	return 0, fmt.Errorf("unknown protocol variant %q (want v1 or v2)", s)
}

// Command is one outbound AT instruction.
type Command struct {
	Text    string
	Variant Variant
}

func (c Command) String() string {
	return c.Text
}

// Dialect bundles everything that differs between variants: the command
// templates, the response marker table and the stage plan.
type Dialect struct {
	variant    Variant
	classifier Classifier
}

var (
	dialectV1 = &Dialect{
		variant: V1,
		classifier: NewClassifier(
			Marker{MarkerV1Ack, Ack},
			Marker{MarkerV1Nack, Nack},
			Marker{MarkerV1FwupSuccess, FwupSuccess},
			Marker{MarkerV1FwupFail, FwupFail},
		),
	}

	dialectV2 = &Dialect{
		variant: V2,
		classifier: NewClassifier(
			Marker{MarkerV2Ack, Ack},
			Marker{MarkerV2FwupSuccess, FwupSuccess},
			Marker{MarkerV2Version, VersionReport},
			Marker{MarkerV2FwupFail, FwupFail},
			Marker{MarkerCmeError, Nack},
		),
	}
)

// DialectFor returns the dialect of variant v.
func DialectFor(v Variant) (*Dialect, error) {
	switch v {
	case V1:
		return dialectV1, nil
	case V2:
		return dialectV2, nil
	}
	return nil, fmt.Errorf("unsupported protocol variant %v", v)
}

// Variant returns the variant this dialect speaks.
func (d *Dialect) Variant() Variant {
	return d.variant
}

// Classify maps a response line to a verdict using this dialect's markers.
func (d *Dialect) Classify(line string) (Verdict, bool) {
	return d.classifier.Classify(line)
}

// Payload renders a chunk for the wire. Both dialects use the same token
// string; they differ only in where the command places it.
func (d *Dialect) Payload(c Chunk) string {
	return EncodeHex(c.Data)
}

// PushChunk builds the command that writes one chunk to the device NVM.
func (d *Dialect) PushChunk(c Chunk) Command {
	payload := d.Payload(c)
	if d.variant == V1 {
		return d.command(fmt.Sprintf(v1PushChunkFmt, c.Size, payload))
	}
	return d.command(fmt.Sprintf(v2PushChunkFmt, c.Size, payload))
}

// Reset builds the companion chip reset command.
func (d *Dialect) Reset() Command {
	return d.command(ResetCmd)
}

// ClearRegion builds the FOTA region erase command. V2 only.
func (d *Dialect) ClearRegion() Command {
	return d.command(v2ClearRegionCmd)
}

// Metadata builds the FOTA metadata command carrying the image offset and
// total size. V2 only.
func (d *Dialect) Metadata(offset, size int64) Command {
	return d.command(fmt.Sprintf(v2MetadataFmt, offset, size))
}

// InitLoc builds the location engine init command. V1 only.
func (d *Dialect) InitLoc() Command {
	return d.command(v1InitCmd)
}

// GetVersion builds the firmware version query.
func (d *Dialect) GetVersion() Command {
	if d.variant == V1 {
		return d.command(v1GetVersionCmd)
	}
	return d.command(v2GetVersionCmd)
}

// Trigger builds the command that starts the on-device update. V1 carries
// the image size, V2 relies on the metadata written earlier.
func (d *Dialect) Trigger(size int64) Command {
	if d.variant == V1 {
		return d.command(fmt.Sprintf(v1TriggerFmt, size))
	}
	return d.command(v2TriggerCmd)
}

// IsVersionReply reports whether v answers a version query. V1 replies with
// a plain LOC_AT: OK, V2 with a dedicated version line.
func (d *Dialect) IsVersionReply(v Verdict) bool {
	return v == VersionReport || v == Ack
}

// VerifiesAfterFailure reports whether the version is queried after the
// trigger wait failed. V1 only queries it after FwupSuccess.
func (d *Dialect) VerifiesAfterFailure() bool {
	return d.variant == V2
}

// Plan returns the stage sequence of one update run.
func (d *Dialect) Plan(trigger, resetV1 bool) []Stage {
	var plan []Stage
	switch d.variant {
	case V1:
		if resetV1 {
			plan = append(plan, StageReset)
		}
		plan = append(plan, StageTransfer)
		if trigger {
			plan = append(plan, StageInitLoc, StageGetVersion, StageTrigger, StageVerifyVersion)
		}
	case V2:
		plan = append(plan, StageReset, StageClearRegion, StageWriteMetadata, StageTransfer)
		if trigger {
			plan = append(plan, StageGetVersion, StageTrigger, StageVerifyVersion)
		}
	}
	return plan
}

// versionTimeout and triggerTimeout pick the variant's entry from t.
func (d *Dialect) versionTimeout(t Timeouts) time.Duration {
	if d.variant == V1 {
		return t.V1Version
	}
	return t.V2Version
}

func (d *Dialect) triggerTimeout(t Timeouts) time.Duration {
	if d.variant == V1 {
		return t.V1Trigger
	}
	return t.V2Trigger
}

func (d *Dialect) command(text string) Command {
	return Command{Text: text, Variant: d.variant}
}
