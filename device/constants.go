package device

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeOtherSpeedConfig     = 0x07
	DescriptorTypeInterfacePower       = 0x08
	DescriptorTypeInterfaceAssociation = 0x0B
	DescriptorTypeCSInterface          = 0x24 // Class-specific interface
	DescriptorTypeCSEndpoint           = 0x25 // Class-specific endpoint
)

// USB Class Codes.
const (
	ClassPerInterface = 0x00 // Class defined at interface level
	ClassCDC          = 0x02 // Communications Device Class
	ClassCDCData      = 0x0A // CDC-Data
	ClassMisc         = 0xEF // Miscellaneous
	ClassVendor       = 0xFF // Vendor Specific
)

// Endpoint transfer types, as encoded in the endpoint attributes.
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Bus-powered (required)
	ConfigAttrSelfPowered  = 0x40 // Self-powered
	ConfigAttrRemoteWakeup = 0x20 // Remote wakeup capable
)

// GET_STATUS response bits (USB 2.0 Spec Figures 9-4 and 9-6).
const (
	StatusSelfPowered  = 0x0001
	StatusRemoteWakeup = 0x0002
	StatusEndpointHalt = 0x0001
)

// Limits of the stock descriptor provider.
const (
	// MaxStrings is the number of string descriptor slots, including the
	// language table at index 0.
	MaxStrings = 16

	// MaxConfigurations is the number of configurations a device may offer.
	MaxConfigurations = 4

	// MaxStringLength is the longest string descriptor, in bytes.
	MaxStringLength = 255
)
