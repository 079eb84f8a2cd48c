package cdc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/class/cdc"
)

func TestConfiguration(t *testing.T) {
	blob := cdc.Configuration(cdc.DefaultIdentity, cdc.DefaultEndpoints)
	require.Len(t, blob, 62)

	var cfg device.ConfigurationDescriptor
	require.NoError(t, device.ParseConfigurationDescriptor(blob, &cfg))
	assert.Equal(t, uint16(62), cfg.TotalLength)
	assert.Equal(t, uint8(2), cfg.NumInterfaces)
	assert.Equal(t, uint8(device.ConfigAttrBusPowered|device.ConfigAttrSelfPowered), cfg.Attributes)
	assert.Equal(t, uint8(50), cfg.MaxPower)

	var types []uint8
	var endpoints []uint8
	require.NoError(t, device.ForEachDescriptor(blob, func(d []byte) bool {
		types = append(types, d[1])
		if d[1] == device.DescriptorTypeEndpoint {
			endpoints = append(endpoints, d[2])
		}
		return true
	}))
	assert.Equal(t, []uint8{
		device.DescriptorTypeConfiguration,
		device.DescriptorTypeInterface,
		cdc.DescriptorTypeCSInterface,
		cdc.DescriptorTypeCSInterface,
		cdc.DescriptorTypeCSInterface,
		device.DescriptorTypeEndpoint,
		device.DescriptorTypeInterface,
		device.DescriptorTypeEndpoint,
		device.DescriptorTypeEndpoint,
	}, types)
	assert.Equal(t, []uint8{0x81, 0x03, 0x82}, endpoints)

	// Header, ACM and Union functional descriptors.
	assert.Equal(t, []byte{0x05, 0x24, 0x00, 0x10, 0x01}, blob[18:23])
	assert.Equal(t, []byte{0x04, 0x24, 0x02, 0x06}, blob[23:27])
	assert.Equal(t, []byte{0x05, 0x24, 0x06, 0x00, 0x01}, blob[27:32])
}

func TestConfiguration_BusPowered(t *testing.T) {
	id := cdc.DefaultIdentity
	id.SelfPowered = false
	id.MaxPowerMA = 600
	blob := cdc.Configuration(id, cdc.DefaultEndpoints)
	assert.Equal(t, uint8(device.ConfigAttrBusPowered), blob[7])
	assert.Equal(t, uint8(255), blob[8])
}

func TestEndpointsTable(t *testing.T) {
	blob := cdc.Configuration(cdc.DefaultIdentity, cdc.DefaultEndpoints)
	fromBlob, err := device.EndpointTable(64, blob)
	require.NoError(t, err)

	// Same endpoints, possibly in another order.
	table := cdc.DefaultEndpoints.Table(64)
	assert.Equal(t, fromBlob[0], table[0])
	assert.Len(t, table, len(fromBlob))
	assert.Equal(t, uint8(4), table[0])
}

func TestDemoDescriptors(t *testing.T) {
	d, err := cdc.DemoDescriptors(cdc.DefaultIdentity, cdc.DefaultEndpoints, 64)
	require.NoError(t, err)

	var desc device.DeviceDescriptor
	require.NoError(t, device.ParseDeviceDescriptor(d.Descriptor(uint16(device.DescriptorTypeDevice)<<8, 0), &desc))
	assert.Equal(t, uint16(0x0200), desc.USBVersion)
	assert.Equal(t, uint8(64), desc.MaxPacketSize0)
	assert.Equal(t, uint8(1), desc.NumConfigurations)
	assert.Zero(t, desc.SerialNumberIndex)

	s, err := device.ParseStringDescriptor(d.Descriptor(uint16(device.DescriptorTypeString)<<8|cdc.StringProduct, device.LangIDUSEnglish))
	require.NoError(t, err)
	assert.Equal(t, "EFM32 CDC Device", s)
	assert.Nil(t, d.Descriptor(uint16(device.DescriptorTypeString)<<8|cdc.StringSerialNumber, device.LangIDUSEnglish))
}
