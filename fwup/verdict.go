package fwup

import (
	"fmt"
	"strings"
)

// Verdict is the classified meaning of a device response line.
type Verdict int

const (
	// NoResponse means no line matched a marker before the deadline.
	NoResponse Verdict = iota
	Ack
	Nack
	FwupSuccess
	FwupFail
	VersionReport
)

func (v Verdict) String() string {
	switch v {
	case NoResponse:
		return "no response"
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case FwupSuccess:
		return "fwup success"
	case FwupFail:
		return "fwup fail"
	case VersionReport:
		return "version report"
	}
	return fmt.Sprintf("unknown verdict %d", int(v))
}

// Marker maps a substring of a response line to a verdict.
type Marker struct {
	Substr  string
	Verdict Verdict
}

// Classifier maps response lines to verdicts using an ordered marker table.
// The first marker contained in the line wins.
type Classifier struct {
	markers []Marker
}

// NewClassifier returns a classifier over the given markers, in order.
func NewClassifier(markers ...Marker) Classifier {
	m := make([]Marker, len(markers))
	copy(m, markers)
	return Classifier{markers: m}
}

// Classify returns the verdict of line, or false if no marker matches and
// the line should be ignored.
func (c Classifier) Classify(line string) (Verdict, bool) {
	for _, m := range c.markers {
		if strings.Contains(line, m.Substr) {
			return m.Verdict, true
		}
	}
	return NoResponse, false
}

// Markers returns a copy of the marker table.
func (c Classifier) Markers() []Marker {
	m := make([]Marker, len(c.markers))
	copy(m, c.markers)
	return m
}
