package fwup

import (
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// SerialTransport opens the modem's AT port with go.bug.st/serial. Each Open
// starts a new session with the configured mode.
type SerialTransport struct {
	PortName string
	Mode     *serial.Mode
}

// NewSerialTransport returns a transport for portName at baud, 8N1.
func NewSerialTransport(portName string, baud int) *SerialTransport {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &SerialTransport{
		PortName: portName,
		Mode: &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

// Name returns the port path.
func (t *SerialTransport) Name() string {
	return t.PortName
}

// Open opens the port. Pending input is kept: the answer to a command sent
// in the previous session may already be buffered.
func (t *SerialTransport) Open() (Port, error) {
	port, err := serial.Open(t.PortName, t.Mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s at %d baud", t.PortName, t.Mode.BaudRate)
	}
	return port, nil
}

// IsDisconnected reports whether err indicates the port went away, as
// opposed to a configuration or permission problem.
func IsDisconnected(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "input/output error") ||
		strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "broken pipe")
}

// IsPortBusy reports whether err means another process holds the port.
func IsPortBusy(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortBusy
	}
	return false
}
