package device

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// Sizes of the fixed-length standard descriptors.
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
)

// putHeader writes bLength and bDescriptorType, reporting false when buf
// cannot hold size bytes.
func putHeader(buf []byte, size int, typ uint8) bool {
	if len(buf) < size {
		return false
	}
	buf[0] = uint8(size)
	buf[1] = typ
	return true
}

// checkHeader verifies that data holds at least size bytes of a descriptor
// of type typ. bLength itself is not trusted.
func checkHeader(data []byte, size int, typ uint8) error {
	if len(data) < size {
		return fmt.Errorf("descriptor 0x%02X: %d of %d bytes: %w", typ, len(data), size, pkg.ErrDescriptorTooShort)
	}
	if data[1] != typ {
		return fmt.Errorf("descriptor 0x%02X, want 0x%02X: %w", data[1], typ, pkg.ErrDescriptorTypeMismatch)
	}
	return nil
}

// DeviceDescriptor is the device descriptor. Multi-byte fields are
// little-endian on the wire; versions are BCD.
type DeviceDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// MarshalTo writes d to buf and returns DeviceDescriptorSize, or 0 if buf
// is too small.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, DeviceDescriptorSize, DescriptorTypeDevice) {
		return 0
	}
	le := binary.LittleEndian
	le.PutUint16(buf[2:], d.USBVersion)
	copy(buf[4:8], []byte{d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0})
	le.PutUint16(buf[8:], d.VendorID)
	le.PutUint16(buf[10:], d.ProductID)
	le.PutUint16(buf[12:], d.DeviceVersion)
	copy(buf[14:18], []byte{d.ManufacturerIndex, d.ProductIndex, d.SerialNumberIndex, d.NumConfigurations})
	return DeviceDescriptorSize
}

// ParseDeviceDescriptor decodes a device descriptor into out.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if err := checkHeader(data, DeviceDescriptorSize, DescriptorTypeDevice); err != nil {
		return err
	}
	le := binary.LittleEndian
	*out = DeviceDescriptor{
		USBVersion:        le.Uint16(data[2:]),
		DeviceClass:       data[4],
		DeviceSubClass:    data[5],
		DeviceProtocol:    data[6],
		MaxPacketSize0:    data[7],
		VendorID:          le.Uint16(data[8:]),
		ProductID:         le.Uint16(data[10:]),
		DeviceVersion:     le.Uint16(data[12:]),
		ManufacturerIndex: data[14],
		ProductIndex:      data[15],
		SerialNumberIndex: data[16],
		NumConfigurations: data[17],
	}
	return nil
}

// ConfigurationDescriptor is the configuration descriptor header.
// TotalLength covers every descriptor that follows it. MaxPower is in 2 mA
// units.
type ConfigurationDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

// MarshalTo writes c to buf and returns ConfigurationDescriptorSize, or 0
// if buf is too small.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, ConfigurationDescriptorSize, DescriptorTypeConfiguration) {
		return 0
	}
	binary.LittleEndian.PutUint16(buf[2:], c.TotalLength)
	copy(buf[4:9], []byte{c.NumInterfaces, c.ConfigurationValue, c.ConfigurationIndex, c.Attributes, c.MaxPower})
	return ConfigurationDescriptorSize
}

// ParseConfigurationDescriptor decodes the header of a configuration blob
// into out.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if err := checkHeader(data, ConfigurationDescriptorSize, DescriptorTypeConfiguration); err != nil {
		return err
	}
	*out = ConfigurationDescriptor{
		TotalLength:        binary.LittleEndian.Uint16(data[2:]),
		NumInterfaces:      data[4],
		ConfigurationValue: data[5],
		ConfigurationIndex: data[6],
		Attributes:         data[7],
		MaxPower:           data[8],
	}
	return nil
}

// InterfaceDescriptor is an interface descriptor. NumEndpoints excludes
// endpoint 0.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// MarshalTo writes i to buf and returns InterfaceDescriptorSize, or 0 if
// buf is too small.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, InterfaceDescriptorSize, DescriptorTypeInterface) {
		return 0
	}
	copy(buf[2:9], []byte{
		i.InterfaceNumber, i.AlternateSetting, i.NumEndpoints,
		i.InterfaceClass, i.InterfaceSubClass, i.InterfaceProtocol,
		i.InterfaceIndex,
	})
	return InterfaceDescriptorSize
}

// ParseInterfaceDescriptor decodes an interface descriptor into out.
func ParseInterfaceDescriptor(data []byte, out *InterfaceDescriptor) error {
	if err := checkHeader(data, InterfaceDescriptorSize, DescriptorTypeInterface); err != nil {
		return err
	}
	*out = InterfaceDescriptor{
		InterfaceNumber:   data[2],
		AlternateSetting:  data[3],
		NumEndpoints:      data[4],
		InterfaceClass:    data[5],
		InterfaceSubClass: data[6],
		InterfaceProtocol: data[7],
		InterfaceIndex:    data[8],
	}
	return nil
}

// EndpointDescriptor is an endpoint descriptor. EndpointAddress carries
// the direction bit.
type EndpointDescriptor struct {
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// MarshalTo writes e to buf and returns EndpointDescriptorSize, or 0 if
// buf is too small.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, EndpointDescriptorSize, DescriptorTypeEndpoint) {
		return 0
	}
	buf[2], buf[3] = e.EndpointAddress, e.Attributes
	binary.LittleEndian.PutUint16(buf[4:], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointDescriptorSize
}

// ParseEndpointDescriptor decodes an endpoint descriptor into out.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) error {
	if err := checkHeader(data, EndpointDescriptorSize, DescriptorTypeEndpoint); err != nil {
		return err
	}
	*out = EndpointDescriptor{
		EndpointAddress: data[2],
		Attributes:      data[3],
		MaxPacketSize:   binary.LittleEndian.Uint16(data[4:]),
		Interval:        data[6],
	}
	return nil
}

// utf16le encodes and decodes string descriptor payloads.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// StringDescriptorTo writes s as a USB string descriptor to buf and returns
// the number of bytes written, or 0 if buf is too small. Strings longer
// than a descriptor can hold are truncated on a character boundary.
func StringDescriptorTo(buf []byte, s string) int {
	payload, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0
	}
	if limit := MaxStringLength - 2; len(payload) > limit {
		payload = payload[:limit&^1]
		// Drop a dangling high surrogate.
		if hi := binary.LittleEndian.Uint16(payload[len(payload)-2:]); hi >= 0xD800 && hi < 0xDC00 {
			payload = payload[:len(payload)-2]
		}
	}
	length := 2 + len(payload)
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	copy(buf[2:], payload)
	return length
}

// ParseStringDescriptor decodes a USB string descriptor.
func ParseStringDescriptor(data []byte) (string, error) {
	if len(data) < 2 || int(data[0]) > len(data) || data[0] < 2 {
		return "", pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeString {
		return "", pkg.ErrDescriptorTypeMismatch
	}
	s, err := utf16le.NewDecoder().Bytes(data[2:data[0]])
	if err != nil {
		return "", fmt.Errorf("string descriptor: %w", err)
	}
	return string(s), nil
}

// LanguageDescriptorTo writes the language ID string descriptor to buf.
// Returns the number of bytes written. If buf is too small, returns 0.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	length := 2 + len(langIDs)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return length
}

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// Marshaler is implemented by every descriptor type, including the
// class-specific ones defined by class packages.
type Marshaler interface {
	MarshalTo(buf []byte) int
}

// AppendDescriptor appends the serialized descriptor d to dst.
func AppendDescriptor(dst []byte, d Marshaler) []byte {
	var tmp [MaxStringLength]byte
	n := d.MarshalTo(tmp[:])
	return append(dst, tmp[:n]...)
}

// BuildConfiguration serializes a configuration descriptor followed by
// the interface, endpoint and class descriptors that belong to it.
// wTotalLength is computed, as is bNumInterfaces when cfg leaves it zero.
func BuildConfiguration(cfg ConfigurationDescriptor, parts ...Marshaler) []byte {
	if cfg.NumInterfaces == 0 {
		for _, p := range parts {
			if iface, ok := p.(*InterfaceDescriptor); ok && iface.AlternateSetting == 0 {
				cfg.NumInterfaces++
			}
		}
	}
	out := AppendDescriptor(nil, &cfg)
	for _, p := range parts {
		out = AppendDescriptor(out, p)
	}
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(out)))
	return out
}

// ForEachDescriptor calls fn for each descriptor in a concatenated
// descriptor blob, stopping early when fn returns false.
func ForEachDescriptor(data []byte, fn func(desc []byte) bool) error {
	for len(data) > 0 {
		n := int(data[0])
		if n < 2 || n > len(data) {
			return fmt.Errorf("descriptor length %d, %d bytes left: %w", n, len(data), pkg.ErrDescriptorTooShort)
		}
		if !fn(data[:n]) {
			return nil
		}
		data = data[n:]
	}
	return nil
}

// EndpointTable derives the controller's endpoint table from a
// configuration blob: the control endpoint with packet size ep0Size, then
// every endpoint descriptor in the order it appears.
func EndpointTable(ep0Size uint8, config []byte) ([]byte, error) {
	eps := []hal.EndpointConfig{{
		Address:       0x00,
		Attributes:    EndpointTypeControl,
		MaxPacketSize: uint16(ep0Size),
	}}
	var parseErr error
	err := ForEachDescriptor(config, func(desc []byte) bool {
		if desc[1] != DescriptorTypeEndpoint {
			return true
		}
		var ep EndpointDescriptor
		if parseErr = ParseEndpointDescriptor(desc, &ep); parseErr != nil {
			return false
		}
		eps = append(eps, hal.EndpointConfig{
			Address:       ep.EndpointAddress,
			Attributes:    ep.Attributes,
			MaxPacketSize: ep.MaxPacketSize,
			Interval:      ep.Interval,
		})
		return true
	})
	if err == nil {
		err = parseErr
	}
	if err != nil {
		return nil, err
	}
	return hal.EndpointTable(eps...), nil
}
