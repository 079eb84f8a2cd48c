package hal

import (
	"encoding/binary"
	"fmt"
)

// Registers is a block of 32-bit memory-mapped registers addressed by byte
// offset from the block base.
type Registers interface {
	Load(offset uint32) uint32
	Store(offset uint32, value uint32)
}

// Peripheral is a USB controller register block together with the system
// RAM window its DMA engine reads and writes.
type Peripheral interface {
	Registers

	// DMA returns the RAM window shared with the controller's DMA engine.
	// The driver carves SETUP and endpoint buffers out of it.
	DMA() []byte

	// DMAAddress converts an offset into the DMA window to the bus address
	// programmed into the controller's DMA address registers.
	DMAAddress(offset int) uint32
}

// ClockGate is implemented by peripherals whose bus clocks must be enabled
// before the register block responds.
type ClockGate interface {
	EnableClock()
	DisableClock()
}

// InterruptLine is a single interrupt source at the system interrupt
// controller.
type InterruptLine interface {
	// SetHandler installs the function run when the line fires.
	SetHandler(handler func())

	// Enable unmasks the line.
	Enable()

	// Disable masks the line and reports whether it was enabled before.
	Disable() bool

	// ClearPending discards a latched request.
	ClearPending()
}

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// State is the USB device connection state (USB 2.0 section 9.1).
type State uint8

// Device states.
const (
	StateUnattached State = iota // No bus power
	StatePowered                 // Bus power present, no reset yet
	StateDefault                 // Reset, responding at address 0
	StateAddressed               // Unique address assigned
	StateConfigured              // Configuration selected
	StateSuspended               // Bus idle for more than 3 ms
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnattached:
		return "Unattached"
	case StatePowered:
		return "Powered"
	case StateDefault:
		return "Default"
	case StateAddressed:
		return "Addressed"
	case StateConfigured:
		return "Configured"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// Transfer types, as encoded in bits 0-1 of an endpoint's attributes.
const (
	TransferTypeControl     = 0x00
	TransferTypeIsochronous = 0x01
	TransferTypeBulk        = 0x02
	TransferTypeInterrupt   = 0x03
)

// Endpoint address fields.
const (
	EndpointDirectionIn = 0x80
	EndpointNumberMask  = 0x0F
)

// EndpointConfig describes one entry of the endpoint table.
type EndpointConfig struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval for interrupt endpoints
}

// Number returns the endpoint number (0-15).
func (e *EndpointConfig) Number() uint8 {
	return e.Address & EndpointNumberMask
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointConfig) IsIn() bool {
	return e.Address&EndpointDirectionIn != 0
}

// TransferType returns the transfer type (control, bulk, interrupt, isochronous).
func (e *EndpointConfig) TransferType() uint8 {
	return e.Attributes & 0x03
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// SetupPacket is the 8-byte request header of a control transfer.
type SetupPacket struct {
	RequestType uint8  // bmRequestType: direction, type, recipient
	Request     uint8  // bRequest: specific request code
	Value       uint16 // wValue: request-specific parameter
	Index       uint16 // wIndex: request-specific index
	Length      uint16 // wLength: number of bytes in the data stage
}

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// IsDeviceToHost returns true if the data stage flows device to host.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&0x80 != 0
}

// Type returns the request type bits (standard, class or vendor).
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & 0x60
}

// Recipient returns the request recipient bits.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & 0x1F
}

// String returns a compact representation for logging.
func (s *SetupPacket) String() string {
	return fmt.Sprintf("SETUP[%02X %02X %04X %04X %d]",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

// ControlPipe is the control endpoint surface a USB controller driver
// offers to request handlers while a SETUP transaction is being processed.
// All methods run in interrupt context.
type ControlPipe interface {
	// WriteControl sends data in the IN data stage, truncated to the
	// request's wLength.
	WriteControl(data []byte) error

	// ReadControl receives the OUT data stage into buf.
	ReadControl(buf []byte) (int, error)

	// Acknowledge completes a request without an IN data stage by sending
	// a zero-length status packet.
	Acknowledge() error

	// Stall rejects the request.
	Stall()

	// SetAddress programs the device address and completes the status stage.
	SetAddress(address uint8) error

	// SetConfiguration records the selected configuration, completes the
	// status stage and notifies the application.
	SetConfiguration(config uint8) error

	// Configuration returns the selected configuration (0 when none).
	Configuration() uint8

	// State returns the device state.
	State() State

	// RemoteWakeup and SetRemoteWakeup read and record the host's remote
	// wakeup selection. A bus reset clears it.
	RemoteWakeup() bool
	SetRemoteWakeup(enabled bool)

	// HaltEndpoint and ClearHalt set and clear the halt feature of a
	// non-control endpoint.
	HaltEndpoint(address uint8) error
	ClearHalt(address uint8) error

	// EndpointHalted reports the halt feature of an endpoint.
	EndpointHalted(address uint8) (bool, error)
}

// RequestHandler processes a control request delivered by the driver.
// It returns false when the request is not recognized; the driver then
// stalls the control endpoint.
type RequestHandler interface {
	HandleControlRequest(req *SetupPacket, pipe ControlPipe) bool
}

// RequestHandlerFunc adapts a function to a RequestHandler.
type RequestHandlerFunc func(req *SetupPacket, pipe ControlPipe) bool

// HandleControlRequest calls f(req, pipe).
func (f RequestHandlerFunc) HandleControlRequest(req *SetupPacket, pipe ControlPipe) bool {
	return f(req, pipe)
}
