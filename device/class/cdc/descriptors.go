package cdc

import (
	"fmt"

	"github.com/ardnew/geckousb/device"
)

// Identity is what the device reports about itself.
type Identity struct {
	VendorID     uint16
	ProductID    uint16
	Release      uint16 // BCD device release
	Manufacturer string
	Product      string
	SerialNumber string // empty to omit
	SelfPowered  bool
	MaxPowerMA   uint16
}

// DefaultIdentity is the EFM32 virtual COM port identity.
var DefaultIdentity = Identity{
	VendorID:     0x10C4,
	ProductID:    0x89A1,
	Release:      0x0001,
	Manufacturer: "Silicon Laboratories Inc.",
	Product:      "EFM32 CDC Device",
	SelfPowered:  true,
	MaxPowerMA:   100,
}

// Interface numbers of the virtual serial function.
const (
	InterfaceControl = 0
	InterfaceData    = 1
)

// Configuration builds the virtual serial configuration: a communications
// interface with its functional descriptors and notification endpoint,
// then a data interface with bulk OUT and bulk IN.
func Configuration(id Identity, eps Endpoints) []byte {
	attrs := uint8(device.ConfigAttrBusPowered)
	if id.SelfPowered {
		attrs |= device.ConfigAttrSelfPowered
	}
	return device.BuildConfiguration(
		device.ConfigurationDescriptor{
			ConfigurationValue: 1,
			Attributes:         attrs,
			MaxPower:           uint8(min(id.MaxPowerMA, 510) / 2),
		},
		&device.InterfaceDescriptor{
			InterfaceNumber:   InterfaceControl,
			NumEndpoints:      1,
			InterfaceClass:    device.ClassCDC,
			InterfaceSubClass: SubclassACM,
			InterfaceProtocol: ProtocolAT,
		},
		&HeaderDescriptor{CDCVersion: 0x0110},
		&ACMDescriptor{Capabilities: ACMCapLineCoding | ACMCapSendBreak},
		&UnionDescriptor{MasterInterface: InterfaceControl, SlaveInterface0: InterfaceData},
		&device.EndpointDescriptor{
			EndpointAddress: eps.Notify,
			Attributes:      device.EndpointTypeInterrupt,
			MaxPacketSize:   eps.NotifySize,
			Interval:        0xFF,
		},
		&device.InterfaceDescriptor{
			InterfaceNumber:   InterfaceData,
			NumEndpoints:      2,
			InterfaceClass:    device.ClassCDCData,
			InterfaceSubClass: SubclassNone,
			InterfaceProtocol: ProtocolNone,
		},
		&device.EndpointDescriptor{
			EndpointAddress: eps.Out,
			Attributes:      device.EndpointTypeBulk,
			MaxPacketSize:   eps.DataSize,
			Interval:        0x05,
		},
		&device.EndpointDescriptor{
			EndpointAddress: eps.In,
			Attributes:      device.EndpointTypeBulk,
			MaxPacketSize:   eps.DataSize,
			Interval:        0x05,
		},
	)
}

// Demo string indexes.
const (
	StringManufacturer = 1
	StringProduct      = 2
	StringSerialNumber = 3
)

// DemoDescriptors returns the descriptor set of the virtual serial device
// with a control endpoint of ep0Size bytes.
func DemoDescriptors(id Identity, eps Endpoints, ep0Size uint8) (*device.Descriptors, error) {
	desc := &device.DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       device.ClassCDC,
		DeviceSubClass:    SubclassNone,
		DeviceProtocol:    ProtocolNone,
		MaxPacketSize0:    ep0Size,
		VendorID:          id.VendorID,
		ProductID:         id.ProductID,
		DeviceVersion:     id.Release,
		ManufacturerIndex: StringManufacturer,
		ProductIndex:      StringProduct,
	}
	if id.SerialNumber != "" {
		desc.SerialNumberIndex = StringSerialNumber
	}

	d := device.NewDescriptors(desc)
	if err := d.AddConfiguration(Configuration(id, eps)); err != nil {
		return nil, err
	}
	for _, s := range []struct {
		index uint8
		value string
	}{
		{StringManufacturer, id.Manufacturer},
		{StringProduct, id.Product},
		{StringSerialNumber, id.SerialNumber},
	} {
		if s.value == "" {
			continue
		}
		if err := d.SetString(s.index, s.value); err != nil {
			return nil, fmt.Errorf("string %d: %w", s.index, err)
		}
	}
	return d, nil
}
