package sim

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// ErrStalled is returned when the device stalls a control request.
var ErrStalled = errors.New("control request stalled")

// Host drives standard requests against a simulated controller, the way a
// host's enumeration code would.
type Host struct {
	c *Controller
}

// NewHost returns a host attached to c.
func NewHost(c *Controller) *Host {
	return &Host{c: c}
}

// Controller returns the simulated controller the host drives.
func (h *Host) Controller() *Controller { return h.c }

// Control runs one control transfer and returns its IN data stage.
func (h *Host) Control(req hal.SetupPacket, data []byte) ([]byte, error) {
	resp, err := h.c.Setup(req, data)
	if err != nil {
		return nil, err
	}
	if resp.Stalled {
		return nil, fmt.Errorf("%s: %w", req.String(), ErrStalled)
	}
	return resp.Data, nil
}

// GetDescriptor reads up to length bytes of a descriptor.
func (h *Host) GetDescriptor(descType, index uint8, length uint16) ([]byte, error) {
	var req hal.SetupPacket
	device.GetDescriptorSetup(&req, descType, index, length)
	return h.Control(req, nil)
}

// GetString reads and decodes a US English string descriptor.
func (h *Host) GetString(index uint8) (string, error) {
	var req hal.SetupPacket
	device.GetStringSetup(&req, index, device.LangIDUSEnglish, device.MaxStringLength)
	data, err := h.Control(req, nil)
	if err != nil {
		return "", err
	}
	return device.ParseStringDescriptor(data)
}

// SetAddress assigns the device address.
func (h *Host) SetAddress(address uint8) error {
	var req hal.SetupPacket
	device.GetSetAddressSetup(&req, address)
	_, err := h.Control(req, nil)
	return err
}

// SetConfiguration selects a configuration.
func (h *Host) SetConfiguration(config uint8) error {
	var req hal.SetupPacket
	device.GetSetConfigurationSetup(&req, config)
	_, err := h.Control(req, nil)
	return err
}

// GetConfiguration reads the selected configuration value.
func (h *Host) GetConfiguration() (uint8, error) {
	var req hal.SetupPacket
	device.GetConfigurationSetup(&req)
	data, err := h.Control(req, nil)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("configuration response %d bytes: %w", len(data), pkg.ErrProtocol)
	}
	return data[0], nil
}

// GetStatus reads the status word of a device, interface or endpoint.
func (h *Host) GetStatus(recipient uint8, index uint16) (uint16, error) {
	var req hal.SetupPacket
	device.GetStatusSetup(&req, recipient, index)
	data, err := h.Control(req, nil)
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, fmt.Errorf("status response %d bytes: %w", len(data), pkg.ErrProtocol)
	}
	return binary.LittleEndian.Uint16(data), nil
}

// SetFeature and ClearFeature set and clear a feature selector.
func (h *Host) SetFeature(recipient uint8, feature, index uint16) error {
	var req hal.SetupPacket
	device.GetSetFeatureSetup(&req, recipient, feature, index)
	_, err := h.Control(req, nil)
	return err
}

func (h *Host) ClearFeature(recipient uint8, feature, index uint16) error {
	var req hal.SetupPacket
	device.GetClearFeatureSetup(&req, recipient, feature, index)
	_, err := h.Control(req, nil)
	return err
}

// GetInterface reads the alternate setting selected for an interface.
func (h *Host) GetInterface(iface uint8) (uint8, error) {
	var req hal.SetupPacket
	device.GetInterfaceSetup(&req, iface)
	data, err := h.Control(req, nil)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("interface response %d bytes: %w", len(data), pkg.ErrProtocol)
	}
	return data[0], nil
}

// SetInterface selects an alternate setting of an interface.
func (h *Host) SetInterface(iface, alt uint8) error {
	var req hal.SetupPacket
	device.GetSetInterfaceSetup(&req, iface, alt)
	_, err := h.Control(req, nil)
	return err
}

// ClassIn runs a device-to-host class request on an interface.
func (h *Host) ClassIn(request uint8, value, iface, length uint16) ([]byte, error) {
	var req hal.SetupPacket
	device.ClassSetup(&req, true, request, value, iface, length)
	return h.Control(req, nil)
}

// ClassOut runs a host-to-device class request on an interface.
func (h *Host) ClassOut(request uint8, value, iface uint16, data []byte) error {
	var req hal.SetupPacket
	device.ClassSetup(&req, false, request, value, iface, uint16(len(data)))
	_, err := h.Control(req, data)
	return err
}

// Enumeration is what the host learned while enumerating the device.
type Enumeration struct {
	Device        device.DeviceDescriptor
	Configuration []byte
	Interfaces    []device.InterfaceDescriptor
	Manufacturer  string
	Product       string
	SerialNumber  string
}

// Enumerate powers and resets the bus, then walks the standard enumeration
// sequence: device descriptor, address, configuration descriptor, strings
// and finally the first configuration.
func (h *Host) Enumerate(address uint8) (*Enumeration, error) {
	if !h.c.Powered() {
		h.c.PowerOn()
	}
	if err := h.c.BusReset(); err != nil {
		return nil, fmt.Errorf("bus reset: %w", err)
	}

	e := &Enumeration{}
	data, err := h.GetDescriptor(device.DescriptorTypeDevice, 0, device.DeviceDescriptorSize)
	if err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	if err := device.ParseDeviceDescriptor(data, &e.Device); err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}

	if err := h.SetAddress(address); err != nil {
		return nil, fmt.Errorf("set address %d: %w", address, err)
	}

	data, err = h.GetDescriptor(device.DescriptorTypeConfiguration, 0, device.ConfigurationDescriptorSize)
	if err != nil {
		return nil, fmt.Errorf("configuration header: %w", err)
	}
	var cfg device.ConfigurationDescriptor
	if err := device.ParseConfigurationDescriptor(data, &cfg); err != nil {
		return nil, fmt.Errorf("configuration header: %w", err)
	}
	e.Configuration, err = h.GetDescriptor(device.DescriptorTypeConfiguration, 0, cfg.TotalLength)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	if len(e.Configuration) != int(cfg.TotalLength) {
		return nil, fmt.Errorf("configuration: got %d of %d bytes: %w",
			len(e.Configuration), cfg.TotalLength, pkg.ErrProtocol)
	}
	if e.Interfaces, err = interfaces(e.Configuration); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	for _, s := range []struct {
		index uint8
		out   *string
	}{
		{e.Device.ManufacturerIndex, &e.Manufacturer},
		{e.Device.ProductIndex, &e.Product},
		{e.Device.SerialNumberIndex, &e.SerialNumber},
	} {
		if s.index == 0 {
			continue
		}
		if *s.out, err = h.GetString(s.index); err != nil {
			return nil, fmt.Errorf("string %d: %w", s.index, err)
		}
	}

	if err := h.SetConfiguration(cfg.ConfigurationValue); err != nil {
		return nil, fmt.Errorf("set configuration %d: %w", cfg.ConfigurationValue, err)
	}
	pkg.LogInfo(pkg.ComponentSim, "device enumerated",
		"address", address,
		"vid", fmt.Sprintf("%04X", e.Device.VendorID),
		"pid", fmt.Sprintf("%04X", e.Device.ProductID),
		"config", cfg.ConfigurationValue)
	return e, nil
}

// interfaces collects the interface descriptors of a configuration blob.
func interfaces(blob []byte) ([]device.InterfaceDescriptor, error) {
	var out []device.InterfaceDescriptor
	for off := 0; off+1 < len(blob); {
		n := int(blob[off])
		if n < 2 || off+n > len(blob) {
			return nil, fmt.Errorf("descriptor at %d: %w", off, pkg.ErrDescriptorTooShort)
		}
		if blob[off+1] == device.DescriptorTypeInterface {
			var iface device.InterfaceDescriptor
			if err := device.ParseInterfaceDescriptor(blob[off:off+n], &iface); err != nil {
				return nil, fmt.Errorf("descriptor at %d: %w", off, err)
			}
			out = append(out, iface)
		}
		off += n
	}
	return out, nil
}
