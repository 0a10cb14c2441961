package fwup

import (
	"fmt"
	"sort"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	QuectelVID gousb.ID = 0x2c7c

	PID_EC25   gousb.ID = 0x0125 // EC25/EG25, AT on interface 2
	PID_EG91   gousb.ID = 0x0191
	PID_BG95   gousb.ID = 0x0700
	PID_RM500Q gousb.ID = 0x0800 // RM500Q/RM502Q, AT on interface 2
	PID_RG200U gousb.ID = 0x0900 // RG200U/RM500U
	PID_EC200U gousb.ID = 0x0901
	PID_EG915U gousb.ID = 0x0903
	PID_EC200T gousb.ID = 0x6026
	PID_EC200A gousb.ID = 0x6005
)

var quectelModels = map[gousb.ID]string{
	PID_EC25:   "EC25/EG25",
	PID_EG91:   "EG91",
	PID_BG95:   "BG95",
	PID_RM500Q: "RM500Q",
	PID_RG200U: "RG200U/RM500U",
	PID_EC200U: "EC200U",
	PID_EG915U: "EG915U",
	PID_EC200T: "EC200T",
	PID_EC200A: "EC200A",
}

// USBInterface is one vendor specific interface of a module. The AT port is
// one of the interfaces with a bulk IN/OUT endpoint pair.
type USBInterface struct {
	Number   int
	Class    gousb.Class
	SubClass gousb.Class
	Protocol gousb.Protocol
	Bulk     bool
}

func (i USBInterface) String() string {
	bulk := ""
	if i.Bulk {
		bulk = " bulk"
	}
	return fmt.Sprintf("if%d %s/%s/%s%s", i.Number, i.Class, i.SubClass, i.Protocol, bulk)
}

// USBDevice describes a Quectel module attached to the host.
type USBDevice struct {
	Bus          int
	Address      int
	Vendor       gousb.ID
	Product      gousb.ID
	Model        string
	Manufacturer string
	ProductName  string
	SerialNumber string
	Interfaces   []USBInterface
}

func (d USBDevice) String() string {
	return fmt.Sprintf("bus %03d addr %03d %s:%s %s (%s %s) sn=%s",
		d.Bus, d.Address, d.Vendor, d.Product, d.Model, d.Manufacturer, d.ProductName, d.SerialNumber)
}

// ModelName returns the module family of a Quectel product id.
func ModelName(pid gousb.ID) string {
	if name, ok := quectelModels[pid]; ok {
		return name
	}
	return "unknown Quectel module"
}

// ListQuectelUSB opens every attached device with the Quectel vendor id and
// reads its descriptors. It requires access to the USB device nodes.
func ListQuectelUSB() ([]USBDevice, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == QuectelVID
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, errors.Wrap(err, "open Quectel USB devices")
	}
	if err != nil {
		// some devices could not be opened, report the rest
		log.WithError(err).Warn("skipping inaccessible USB devices")
	}

	res := make([]USBDevice, 0, len(devs))
	for _, dev := range devs {
		res = append(res, describeUSB(dev))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Bus != res[j].Bus {
			return res[i].Bus < res[j].Bus
		}
		return res[i].Address < res[j].Address
	})
	return res, nil
}

func describeUSB(dev *gousb.Device) USBDevice {
	d := USBDevice{
		Bus:     dev.Desc.Bus,
		Address: dev.Desc.Address,
		Vendor:  dev.Desc.Vendor,
		Product: dev.Desc.Product,
		Model:   ModelName(dev.Desc.Product),
	}

	if s, err := dev.Manufacturer(); err == nil {
		d.Manufacturer = s
	}
	if s, err := dev.Product(); err == nil {
		d.ProductName = s
	}
	if s, err := dev.SerialNumber(); err == nil {
		d.SerialNumber = s
	}

	for _, cfg := range dev.Desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Alternate != 0 {
					continue
				}
				d.Interfaces = append(d.Interfaces, USBInterface{
					Number:   alt.Number,
					Class:    alt.Class,
					SubClass: alt.SubClass,
					Protocol: alt.Protocol,
					Bulk:     hasBulkPair(alt),
				})
			}
		}
	}
	sort.Slice(d.Interfaces, func(i, j int) bool { return d.Interfaces[i].Number < d.Interfaces[j].Number })
	return d
}

func hasBulkPair(s gousb.InterfaceSetting) bool {
	var in, out bool
	for _, ep := range s.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			in = true
		} else {
			out = true
		}
	}
	return in && out
}
