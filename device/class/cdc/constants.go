package cdc

import (
	"encoding/binary"
	"fmt"
)

// DescriptorTypeCSInterface is the class-specific interface descriptor type.
const DescriptorTypeCSInterface = 0x24

// CDC Functional Descriptor subtypes.
const (
	SubtypeHeader = 0x00 // Header Functional Descriptor
	SubtypeACM    = 0x02 // Abstract Control Model Functional Descriptor
	SubtypeUnion  = 0x06 // Union Functional Descriptor
)

// CDC Subclass and protocol codes used by the virtual serial function.
const (
	SubclassNone = 0x00 // No subclass
	SubclassACM  = 0x02 // Abstract Control Model
	ProtocolNone = 0x00 // No protocol
	ProtocolAT   = 0x01 // AT Commands: V.250
)

// CDC Request codes.
const (
	RequestSetLineCoding       = 0x20
	RequestGetLineCoding       = 0x21
	RequestSetControlLineState = 0x22
	RequestSendBreak           = 0x23
)

// NotificationSerialState reports UART status bits on the notification
// endpoint.
const NotificationSerialState = 0x20

// LineCoding represents the serial line configuration.
type LineCoding struct {
	DTERate    uint32 // Data terminal rate (baud rate)
	CharFormat uint8  // Stop bits: 0=1, 1=1.5, 2=2
	ParityType uint8  // Parity: 0=None, 1=Odd, 2=Even, 3=Mark, 4=Space
	DataBits   uint8  // Data bits: 5, 6, 7, 8, or 16
}

// LineCodingSize is the size of LineCoding in bytes.
const LineCodingSize = 7

// Stop bit values.
const (
	StopBits1   = 0 // 1 stop bit
	StopBits1_5 = 1 // 1.5 stop bits
	StopBits2   = 2 // 2 stop bits
)

// Parity values.
const (
	ParityNone  = 0
	ParityOdd   = 1
	ParityEven  = 2
	ParityMark  = 3
	ParitySpace = 4
)

// Control line state bits (for SET_CONTROL_LINE_STATE).
const (
	ControlLineDTR = 1 << 0 // Data Terminal Ready
	ControlLineRTS = 1 << 1 // Request To Send
)

// Serial state bits (for SERIAL_STATE notification) that a host serial
// port can report.
const (
	SerialStateRxCarrier  = 1 << 0 // DCD (Data Carrier Detect)
	SerialStateTxCarrier  = 1 << 1 // DSR (Data Set Ready)
	SerialStateRingSignal = 1 << 3 // Ring signal detected
)

// DefaultLineCoding provides sensible defaults (115200 8N1).
var DefaultLineCoding = LineCoding{
	DTERate:    115200,
	CharFormat: StopBits1,
	ParityType: ParityNone,
	DataBits:   8,
}

// String formats the line coding as baud and frame, e.g. "115200 8N1".
func (lc LineCoding) String() string {
	parity := "?"
	if int(lc.ParityType) < len(parityNames) {
		parity = parityNames[lc.ParityType : lc.ParityType+1]
	}
	stop := "?"
	switch lc.CharFormat {
	case StopBits1:
		stop = "1"
	case StopBits1_5:
		stop = "1.5"
	case StopBits2:
		stop = "2"
	}
	return fmt.Sprintf("%d %d%s%s", lc.DTERate, lc.DataBits, parity, stop)
}

const parityNames = "NOEMS"

// Supported reports whether a UART can be programmed with lc: five to
// eight data bits, a known parity and a known stop bit count, at a
// nonzero rate. The range is what go.bug.st/serial can set on a host
// port, so mark and space parity are accepted and 16 data bits are not.
// SerialPort depends on every supported coding mapping to a serial.Mode.
func (lc LineCoding) Supported() bool {
	return lc.DTERate != 0 &&
		lc.DataBits >= 5 && lc.DataBits <= 8 &&
		lc.ParityType <= ParitySpace &&
		lc.CharFormat <= StopBits2
}

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], lc.DTERate)
	buf[4] = lc.CharFormat
	buf[5] = lc.ParityType
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
// Returns false if data is too short.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < LineCodingSize {
		return false
	}
	out.DTERate = binary.LittleEndian.Uint32(data[0:4])
	out.CharFormat = data[4]
	out.ParityType = data[5]
	out.DataBits = data[6]
	return true
}

// HeaderDescriptor is the CDC Header Functional Descriptor.
type HeaderDescriptor struct {
	Length         uint8  // Size of this descriptor (5)
	DescriptorType uint8  // CS_INTERFACE (0x24)
	SubType        uint8  // Header (0x00)
	CDCVersion     uint16 // CDC specification release number (0x0110 for 1.10)
}

// HeaderDescriptorSize is the size of the Header Functional Descriptor.
const HeaderDescriptorSize = 5

// MarshalTo writes the descriptor to buf.
func (d *HeaderDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < HeaderDescriptorSize {
		return 0
	}
	buf[0] = HeaderDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeHeader
	binary.LittleEndian.PutUint16(buf[3:5], d.CDCVersion)
	return HeaderDescriptorSize
}

// ACMDescriptor is the Abstract Control Management Functional Descriptor.
type ACMDescriptor struct {
	Length         uint8 // Size of this descriptor (4)
	DescriptorType uint8 // CS_INTERFACE (0x24)
	SubType        uint8 // ACM (0x02)
	Capabilities   uint8 // ACM capabilities
}

// ACMDescriptorSize is the size of the ACM Functional Descriptor.
const ACMDescriptorSize = 4

// ACM capability bits the function advertises.
const (
	ACMCapLineCoding = 1 << 1 // Set/Get Line Coding and Set Control Line State
	ACMCapSendBreak  = 1 << 2 // Send Break
)

// MarshalTo writes the descriptor to buf.
func (d *ACMDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ACMDescriptorSize {
		return 0
	}
	buf[0] = ACMDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeACM
	buf[3] = d.Capabilities
	return ACMDescriptorSize
}

// UnionDescriptor is the Union Functional Descriptor.
type UnionDescriptor struct {
	Length          uint8 // Size of this descriptor (5 for 1 subordinate)
	DescriptorType  uint8 // CS_INTERFACE (0x24)
	SubType         uint8 // Union (0x06)
	MasterInterface uint8 // Control interface number
	SlaveInterface0 uint8 // First subordinate interface (Data interface)
}

// UnionDescriptorSize is the size of the Union Descriptor with one subordinate.
const UnionDescriptorSize = 5

// MarshalTo writes the descriptor to buf.
func (d *UnionDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < UnionDescriptorSize {
		return 0
	}
	buf[0] = UnionDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeUnion
	buf[3] = d.MasterInterface
	buf[4] = d.SlaveInterface0
	return UnionDescriptorSize
}
