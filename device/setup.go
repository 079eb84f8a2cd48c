package device

import "github.com/ardnew/geckousb/device/hal"

// Standard request codes (USB 2.0 Table 9-4) answered by Processor.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Feature selectors.
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
	FeatureTestMode           = 0x02
)

// bmRequestType fields.
const (
	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// SetupPacket is the request header of a control transfer.
type SetupPacket = hal.SetupPacket

// fill sets every field of out. The builders below are what the simulated
// host sends.
func fill(out *SetupPacket, requestType, request uint8, value, index, length uint16) {
	*out = SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      length,
	}
}

const (
	deviceIn  = RequestDirectionDeviceToHost | RequestTypeStandard
	deviceOut = RequestDirectionHostToDevice | RequestTypeStandard
)

// GetDescriptorSetup initializes out as a GET_DESCRIPTOR request.
func GetDescriptorSetup(out *SetupPacket, descType, descIndex uint8, length uint16) {
	fill(out, deviceIn|RequestRecipientDevice, RequestGetDescriptor,
		uint16(descType)<<8|uint16(descIndex), 0, length)
}

// GetStringSetup initializes out as a GET_DESCRIPTOR request for a string
// in the given language.
func GetStringSetup(out *SetupPacket, index uint8, langID uint16, length uint16) {
	GetDescriptorSetup(out, DescriptorTypeString, index, length)
	out.Index = langID
}

func GetSetAddressSetup(out *SetupPacket, address uint8) {
	fill(out, deviceOut|RequestRecipientDevice, RequestSetAddress, uint16(address), 0, 0)
}

func GetSetConfigurationSetup(out *SetupPacket, config uint8) {
	fill(out, deviceOut|RequestRecipientDevice, RequestSetConfiguration, uint16(config), 0, 0)
}

func GetConfigurationSetup(out *SetupPacket) {
	fill(out, deviceIn|RequestRecipientDevice, RequestGetConfiguration, 0, 0, 1)
}

// GetStatusSetup reads the two-byte status of a device, interface or
// endpoint.
func GetStatusSetup(out *SetupPacket, recipient uint8, index uint16) {
	fill(out, deviceIn|recipient, RequestGetStatus, 0, index, 2)
}

func GetSetFeatureSetup(out *SetupPacket, recipient uint8, feature uint16, index uint16) {
	fill(out, deviceOut|recipient, RequestSetFeature, feature, index, 0)
}

func GetClearFeatureSetup(out *SetupPacket, recipient uint8, feature uint16, index uint16) {
	fill(out, deviceOut|recipient, RequestClearFeature, feature, index, 0)
}

func GetSetInterfaceSetup(out *SetupPacket, interfaceNum, alternateSetting uint8) {
	fill(out, deviceOut|RequestRecipientInterface, RequestSetInterface,
		uint16(alternateSetting), uint16(interfaceNum), 0)
}

func GetInterfaceSetup(out *SetupPacket, interfaceNum uint8) {
	fill(out, deviceIn|RequestRecipientInterface, RequestGetInterface, 0, uint16(interfaceNum), 1)
}

// ClassSetup initializes out as a class request addressed to an interface.
func ClassSetup(out *SetupPacket, deviceToHost bool, request uint8, value, iface, length uint16) {
	dir := uint8(RequestDirectionHostToDevice)
	if deviceToHost {
		dir = RequestDirectionDeviceToHost
	}
	fill(out, dir|RequestTypeClass|RequestRecipientInterface, request, value, iface, length)
}
