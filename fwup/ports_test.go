package fwup

import (
	"strings"
	"testing"
)

func TestPickQuectelPort(t *testing.T) {
	ttyS0 := PortInfo{Name: "/dev/ttyS0"}
	at := PortInfo{Name: "/dev/ttyUSB2", IsUSB: true, VID: "2c7c", PID: "0125", Quectel: true}
	nmea := PortInfo{Name: "/dev/ttyUSB1", IsUSB: true, VID: "2C7C", PID: "0125", Quectel: true}
	ftdi := PortInfo{Name: "/dev/ttyUSB9", IsUSB: true, VID: "0403", PID: "6001"}

	got, err := PickQuectelPort([]PortInfo{ttyS0, at, ftdi})
	if err != nil || got.Name != at.Name {
		t.Errorf("PickQuectelPort() = %v, %v, want %s", got, err, at.Name)
	}

	if _, err := PickQuectelPort([]PortInfo{ttyS0, ftdi}); err == nil {
		t.Error("no Quectel port: error = nil")
	}

	_, err = PickQuectelPort([]PortInfo{nmea, at})
	if err == nil {
		t.Fatal("two Quectel ports: error = nil")
	}
	for _, name := range []string{nmea.Name, at.Name} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not list %s", err, name)
		}
	}
}

func TestPortInfoString(t *testing.T) {
	p := PortInfo{Name: "/dev/ttyUSB2", IsUSB: true, VID: "2c7c", PID: "0125", Product: "EG25-G", SerialNumber: "abc"}
	if got, want := p.String(), "/dev/ttyUSB2 [2c7c:0125] EG25-G sn=abc"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (PortInfo{Name: "COM1"}).String(); got != "COM1" {
		t.Errorf("String() = %q", got)
	}
}
