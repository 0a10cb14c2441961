package fwup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// QuectelVIDHex is the USB vendor id of Quectel modules as reported by the
// serial port enumerator.
const QuectelVIDHex = "2c7c"

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string

	// Quectel is set for USB ports of a Quectel module.
	Quectel bool
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.SerialNumber != "" {
		s += " sn=" + p.SerialNumber
	}
	return s
}

// ListPorts enumerates the serial ports of the host, sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate serial ports")
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
			Quectel:      d.IsUSB && strings.EqualFold(d.VID, QuectelVIDHex),
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// PickQuectelPort returns the single Quectel port in ports. A module usually
// exposes several interfaces; when more than one matches the caller has to
// choose.
func PickQuectelPort(ports []PortInfo) (PortInfo, error) {
	var found []PortInfo
	for _, p := range ports {
		if p.Quectel {
			found = append(found, p)
		}
	}

	switch len(found) {
	case 0:
		return PortInfo{}, errors.New("no Quectel serial port found")
	case 1:
		return found[0], nil
	}

	names := make([]string, len(found))
	for i, p := range found {
		names[i] = p.Name
	}
	return PortInfo{}, errors.Errorf("%d Quectel serial ports found (%s), select one with --serialPort",
		len(found), strings.Join(names, ", "))
}

// FindQuectelPort enumerates the host ports and returns the single Quectel
// port.
func FindQuectelPort() (PortInfo, error) {
	ports, err := ListPorts()
	if err != nil {
		return PortInfo{}, err
	}
	return PickQuectelPort(ports)
}
