package device_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/efm32"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/device/hal/sim"
)

func serialConfiguration(attributes uint8) []byte {
	return device.BuildConfiguration(
		device.ConfigurationDescriptor{ConfigurationValue: 1, Attributes: attributes, MaxPower: 50},
		&device.InterfaceDescriptor{InterfaceNumber: 0, NumEndpoints: 1, InterfaceClass: device.ClassCDC, InterfaceSubClass: 2, InterfaceProtocol: 1},
		&device.EndpointDescriptor{EndpointAddress: 0x81, Attributes: device.EndpointTypeInterrupt, MaxPacketSize: 16, Interval: 0xFF},
		&device.InterfaceDescriptor{InterfaceNumber: 1, NumEndpoints: 2, InterfaceClass: device.ClassCDCData},
		&device.EndpointDescriptor{EndpointAddress: 0x03, Attributes: device.EndpointTypeBulk, MaxPacketSize: 64, Interval: 5},
		&device.EndpointDescriptor{EndpointAddress: 0x82, Attributes: device.EndpointTypeBulk, MaxPacketSize: 64, Interval: 5},
	)
}

type stack struct {
	ctrl  *efm32.Controller
	host  *sim.Host
	descs *device.Descriptors
	proc  *device.Processor
	blob  []byte
}

func newStack(t *testing.T, attributes uint8) *stack {
	t.Helper()
	s := sim.New(0)
	c := efm32.New(s, s.Line(), efm32.Config{PollLimit: 64, Sleep: func(time.Duration) {}})

	descs := device.NewDescriptors(&device.DeviceDescriptor{
		USBVersion:        0x0110,
		MaxPacketSize0:    64,
		VendorID:          0x1234,
		ProductID:         0x5678,
		ManufacturerIndex: 1,
		ProductIndex:      2,
	})
	blob := serialConfiguration(attributes)
	require.NoError(t, descs.AddConfiguration(blob))
	require.NoError(t, descs.SetString(1, "Acme"))
	require.NoError(t, descs.SetString(2, "Widget"))

	table, err := device.EndpointTable(64, blob)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(table))

	proc := device.NewProcessor(descs)
	c.SetRequestHandler(proc)
	c.SetOnConfigurationChanged(func(config uint8) {
		if config == 0 {
			return
		}
		c.ConfigureEndpoint(0x81, hal.TransferTypeInterrupt, 16, 1)
		c.ConfigureEndpoint(0x82, hal.TransferTypeBulk, 64, 1)
		c.ConfigureEndpoint(0x03, hal.TransferTypeBulk, 64, 1)
	})
	return &stack{ctrl: c, host: sim.NewHost(s), descs: descs, proc: proc, blob: blob}
}

func (st *stack) enumerate(t *testing.T) *sim.Enumeration {
	t.Helper()
	e, err := st.host.Enumerate(9)
	require.NoError(t, err)
	return e
}

func TestProcessor_Enumerate(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	e := st.enumerate(t)

	assert.Equal(t, uint16(0x1234), e.Device.VendorID)
	assert.Equal(t, uint8(1), e.Device.NumConfigurations)
	assert.Equal(t, "Acme", e.Manufacturer)
	assert.Equal(t, "Widget", e.Product)
	assert.Empty(t, e.SerialNumber)
	assert.Equal(t, st.blob, e.Configuration)

	assert.Equal(t, hal.StateConfigured, st.ctrl.State())
	config, err := st.host.GetConfiguration()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), config)
}

func TestProcessor_GetDescriptor(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.enumerate(t)

	data, err := st.host.GetDescriptor(device.DescriptorTypeConfiguration, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, st.blob[:4], data)

	data, err = st.host.GetDescriptor(device.DescriptorTypeString, 0, 255)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, device.DescriptorTypeString, 0x09, 0x04}, data)

	tests := []struct {
		name     string
		descType uint8
		index    uint8
	}{
		{"unset string", device.DescriptorTypeString, 5},
		{"second device", device.DescriptorTypeDevice, 1},
		{"second configuration", device.DescriptorTypeConfiguration, 1},
		{"qualifier", device.DescriptorTypeDeviceQualifier, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := st.host.GetDescriptor(tt.descType, tt.index, 64)
			assert.ErrorIs(t, err, sim.ErrStalled)
		})
	}
}

func TestProcessor_DeviceStatus(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.enumerate(t)

	status, err := st.host.GetStatus(device.RequestRecipientDevice, 0)
	require.NoError(t, err)
	assert.Zero(t, status)

	require.NoError(t, st.host.SetFeature(device.RequestRecipientDevice, device.FeatureDeviceRemoteWakeup, 0))
	assert.True(t, st.ctrl.RemoteWakeupEnabled())
	status, err = st.host.GetStatus(device.RequestRecipientDevice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(device.StatusRemoteWakeup), status)

	require.NoError(t, st.host.ClearFeature(device.RequestRecipientDevice, device.FeatureDeviceRemoteWakeup, 0))
	assert.False(t, st.ctrl.RemoteWakeupEnabled())

	// Test mode is not supported.
	err = st.host.SetFeature(device.RequestRecipientDevice, device.FeatureTestMode, 0)
	assert.ErrorIs(t, err, sim.ErrStalled)

	// A bus reset clears remote wakeup.
	require.NoError(t, st.host.SetFeature(device.RequestRecipientDevice, device.FeatureDeviceRemoteWakeup, 0))
	require.NoError(t, st.host.Controller().BusReset())
	assert.False(t, st.ctrl.RemoteWakeupEnabled())
}

func TestProcessor_SelfPowered(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered|device.ConfigAttrSelfPowered)

	// Reported from the first configuration before one is selected.
	st.host.Controller().PowerOn()
	require.NoError(t, st.host.Controller().BusReset())
	status, err := st.host.GetStatus(device.RequestRecipientDevice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(device.StatusSelfPowered), status)

	st.enumerate(t)
	status, err = st.host.GetStatus(device.RequestRecipientDevice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(device.StatusSelfPowered), status)
}

func TestProcessor_EndpointHalt(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.enumerate(t)

	require.NoError(t, st.host.SetFeature(device.RequestRecipientEndpoint, device.FeatureEndpointHalt, 0x82))
	status, err := st.host.GetStatus(device.RequestRecipientEndpoint, 0x82)
	require.NoError(t, err)
	assert.Equal(t, uint16(device.StatusEndpointHalt), status)
	assert.False(t, st.ctrl.IsINReady(0x82))

	require.NoError(t, st.host.ClearFeature(device.RequestRecipientEndpoint, device.FeatureEndpointHalt, 0x82))
	status, err = st.host.GetStatus(device.RequestRecipientEndpoint, 0x82)
	require.NoError(t, err)
	assert.Zero(t, status)

	status, err = st.host.GetStatus(device.RequestRecipientEndpoint, 0x00)
	require.NoError(t, err)
	assert.Zero(t, status)

	_, err = st.host.GetStatus(device.RequestRecipientEndpoint, 0x84)
	assert.ErrorIs(t, err, sim.ErrStalled)
	err = st.host.SetFeature(device.RequestRecipientEndpoint, device.FeatureEndpointHalt, 0x00)
	assert.ErrorIs(t, err, sim.ErrStalled)
}

func TestProcessor_Interface(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.host.Controller().PowerOn()
	require.NoError(t, st.host.Controller().BusReset())
	require.NoError(t, st.host.SetAddress(3))

	_, err := st.host.GetInterface(0)
	assert.ErrorIs(t, err, sim.ErrStalled, "unconfigured")

	require.NoError(t, st.host.SetConfiguration(1))
	alt, err := st.host.GetInterface(0)
	require.NoError(t, err)
	assert.Zero(t, alt)

	status, err := st.host.GetStatus(device.RequestRecipientInterface, 1)
	require.NoError(t, err)
	assert.Zero(t, status)

	assert.NoError(t, st.host.SetInterface(1, 0))
	assert.ErrorIs(t, st.host.SetInterface(1, 1), sim.ErrStalled, "alternate setting")

	_, err = st.host.GetInterface(2)
	assert.ErrorIs(t, err, sim.ErrStalled, "no such interface")
}

func TestProcessor_SetConfiguration(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.enumerate(t)

	assert.ErrorIs(t, st.host.SetConfiguration(2), sim.ErrStalled)
	assert.Equal(t, uint8(1), st.ctrl.Configuration())

	require.NoError(t, st.host.SetConfiguration(0))
	assert.Equal(t, hal.StateAddressed, st.ctrl.State())
	config, err := st.host.GetConfiguration()
	require.NoError(t, err)
	assert.Zero(t, config)
}

type classFunc func(req *hal.SetupPacket, pipe hal.ControlPipe) bool

func (f classFunc) HandleClassRequest(req *hal.SetupPacket, pipe hal.ControlPipe) bool {
	return f(req, pipe)
}

func TestProcessor_ClassHandlers(t *testing.T) {
	st := newStack(t, device.ConfigAttrBusPowered)
	st.enumerate(t)

	var order []string
	st.proc.AddClass(classFunc(func(req *hal.SetupPacket, pipe hal.ControlPipe) bool {
		order = append(order, "first")
		return false
	}))
	st.proc.AddClass(classFunc(func(req *hal.SetupPacket, pipe hal.ControlPipe) bool {
		order = append(order, "second")
		if req.Type() != device.RequestTypeClass || req.Request != 0x22 {
			return false
		}
		return pipe.Acknowledge() == nil
	}))

	require.NoError(t, st.host.ClassOut(0x22, 0x0003, 0, nil))
	assert.Equal(t, []string{"first", "second"}, order)

	// Unclaimed class and vendor requests stall.
	assert.ErrorIs(t, st.host.ClassOut(0x7F, 0, 0, nil), sim.ErrStalled)
	_, err := st.host.Control(hal.SetupPacket{RequestType: 0xC0, Request: 0x01, Length: 4}, nil)
	assert.ErrorIs(t, err, sim.ErrStalled)
}

func TestProcessor_DescriptorFunc(t *testing.T) {
	s := sim.New(0)
	c := efm32.New(s, s.Line(), efm32.Config{PollLimit: 64, Sleep: func(time.Duration) {}})
	require.NoError(t, c.Initialize(hal.EndpointTable(hal.EndpointConfig{MaxPacketSize: 64})))

	var asked []uint16
	c.SetRequestHandler(device.NewProcessor(device.DescriptorFunc(func(value, index uint16) []byte {
		asked = append(asked, value, index)
		if value == 0x0300 {
			return []byte{4, device.DescriptorTypeString, 0x09, 0x04}
		}
		return nil
	})))

	host := sim.NewHost(s)
	s.PowerOn()
	require.NoError(t, s.BusReset())

	data, err := host.GetDescriptor(device.DescriptorTypeString, 0, 255)
	require.NoError(t, err)
	assert.Len(t, data, 4)
	_, err = host.GetString(3)
	assert.ErrorIs(t, err, sim.ErrStalled)
	assert.Equal(t, []uint16{0x0300, 0, 0x0303, device.LangIDUSEnglish}, asked)
}
