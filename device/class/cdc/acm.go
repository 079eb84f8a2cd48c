package cdc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// Device is the part of a USB controller driver the ACM function uses:
// endpoint activation and the foreground endpoint streams.
type Device interface {
	ConfigureEndpoint(address, typ uint8, size uint16, banks uint8) bool
	SelectEndpoint(address uint8)
	IsOUTReceived(address uint8) bool
	Read(address uint8, buf []byte) (int, error)
	ClearOUT(address uint8) error
	Write(address uint8, data []byte) (int, error)
	IsINReady(address uint8) bool
}

// Endpoints assigns the function's endpoints.
type Endpoints struct {
	Notify     uint8  // Interrupt IN
	In         uint8  // Bulk IN, device to host
	Out        uint8  // Bulk OUT, host to device
	NotifySize uint16 // Notification packet size
	DataSize   uint16 // Bulk packet size
}

// DefaultEndpoints is the virtual serial port's endpoint assignment.
var DefaultEndpoints = Endpoints{
	Notify:     0x81,
	In:         0x82,
	Out:        0x03,
	NotifySize: 16,
	DataSize:   64,
}

// Table returns the controller endpoint table for eps with a control
// endpoint of ep0Size bytes.
func (eps Endpoints) Table(ep0Size uint16) []byte {
	return hal.EndpointTable(
		hal.EndpointConfig{Address: 0x00, Attributes: hal.TransferTypeControl, MaxPacketSize: ep0Size},
		hal.EndpointConfig{Address: eps.Notify, Attributes: hal.TransferTypeInterrupt, MaxPacketSize: eps.NotifySize},
		hal.EndpointConfig{Address: eps.In, Attributes: hal.TransferTypeBulk, MaxPacketSize: eps.DataSize},
		hal.EndpointConfig{Address: eps.Out, Attributes: hal.TransferTypeBulk, MaxPacketSize: eps.DataSize},
	)
}

// ACM implements the CDC Abstract Control Model function of a virtual
// serial port: the class requests on endpoint 0 and the bulk data pipe.
type ACM struct {
	dev Device
	eps Endpoints

	mutex        sync.RWMutex
	lineCoding   LineCoding
	controlState uint16
	configured   bool
	uart         UART

	onLineCodingChange   func(LineCoding)
	onControlStateChange func(dtr, rts bool)
	onBreak              func(millis uint16)
}

// NewACM returns an ACM function driving dev. The line coding starts at
// 8N1 with a zero rate so the host sends its own.
func NewACM(dev Device, eps Endpoints) *ACM {
	return &ACM{
		dev: dev,
		eps: eps,
		lineCoding: LineCoding{
			CharFormat: StopBits1,
			ParityType: ParityNone,
			DataBits:   8,
		},
	}
}

// Endpoints returns the function's endpoint assignment.
func (a *ACM) Endpoints() Endpoints { return a.eps }

// SetUART installs the UART that line coding changes are applied to.
func (a *ACM) SetUART(u UART) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.uart = u
}

// SetOnLineCodingChange sets the callback for line coding changes.
func (a *ACM) SetOnLineCodingChange(cb func(LineCoding)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.onLineCodingChange = cb
}

// SetOnControlStateChange sets the callback for control line state changes.
func (a *ACM) SetOnControlStateChange(cb func(dtr, rts bool)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.onControlStateChange = cb
}

// SetOnBreak sets the callback for break signaling.
func (a *ACM) SetOnBreak(cb func(millis uint16)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.onBreak = cb
}

// LineCoding returns the current line coding.
func (a *ACM) LineCoding() LineCoding {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.lineCoding
}

// DTR returns the current DTR (Data Terminal Ready) state.
func (a *ACM) DTR() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.controlState&ControlLineDTR != 0
}

// RTS returns the current RTS (Request To Send) state.
func (a *ACM) RTS() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.controlState&ControlLineRTS != 0
}

// Configured reports whether the last configuration change activated the
// function's endpoints.
func (a *ACM) Configured() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.configured
}

// ConfigurationChanged activates the notification and data endpoints,
// resets the baud rate and primes bulk OUT. Install it as the driver's
// configuration callback.
func (a *ACM) ConfigurationChanged(config uint8) {
	if config == 0 {
		a.mutex.Lock()
		a.configured = false
		a.mutex.Unlock()
		return
	}

	ok := a.dev.ConfigureEndpoint(a.eps.Notify, hal.TransferTypeInterrupt, a.eps.NotifySize, 1)
	ok = a.dev.ConfigureEndpoint(a.eps.In, hal.TransferTypeBulk, a.eps.DataSize, 1) && ok
	ok = a.dev.ConfigureEndpoint(a.eps.Out, hal.TransferTypeBulk, a.eps.DataSize, 1) && ok

	a.mutex.Lock()
	a.lineCoding.DTERate = 0
	a.configured = ok
	a.mutex.Unlock()

	if !ok {
		pkg.LogError(pkg.ComponentCDC, "endpoint configuration failed", "config", config)
		return
	}

	a.dev.SelectEndpoint(a.eps.Out)
	if err := a.dev.ClearOUT(a.eps.Out); err != nil {
		pkg.LogWarn(pkg.ComponentCDC, "prime bulk OUT", "error", err)
	}
	pkg.LogInfo(pkg.ComponentCDC, "virtual serial port ready", "config", config)
}

const (
	requestTypeClassIn  = device.RequestDirectionDeviceToHost | device.RequestTypeClass | device.RequestRecipientInterface
	requestTypeClassOut = device.RequestDirectionHostToDevice | device.RequestTypeClass | device.RequestRecipientInterface
)

// HandleClassRequest implements device.ClassHandler.
func (a *ACM) HandleClassRequest(req *device.SetupPacket, pipe hal.ControlPipe) bool {
	var err error
	switch {
	case req.Request == RequestGetLineCoding && req.RequestType == requestTypeClassIn:
		err = a.getLineCoding(pipe)
	case req.Request == RequestSetLineCoding && req.RequestType == requestTypeClassOut:
		err = a.setLineCoding(pipe)
	case req.Request == RequestSetControlLineState && req.RequestType == requestTypeClassOut:
		err = a.setControlLineState(req.Value, pipe)
	case req.Request == RequestSendBreak && req.RequestType == requestTypeClassOut:
		err = a.sendBreak(req.Value, pipe)
	default:
		return false
	}
	if err != nil {
		pkg.LogWarn(pkg.ComponentCDC, "class request failed",
			"setup", req.String(),
			"error", err)
		return false
	}
	return true
}

func (a *ACM) getLineCoding(pipe hal.ControlPipe) error {
	var buf [LineCodingSize]byte
	a.mutex.RLock()
	a.lineCoding.MarshalTo(buf[:])
	a.mutex.RUnlock()
	return pipe.WriteControl(buf[:])
}

func (a *ACM) setLineCoding(pipe hal.ControlPipe) error {
	var buf [LineCodingSize]byte
	n, err := pipe.ReadControl(buf[:])
	if err != nil {
		return err
	}
	var lc LineCoding
	if !ParseLineCoding(buf[:n], &lc) {
		return fmt.Errorf("line coding %d bytes: %w", n, pkg.ErrBufferTooSmall)
	}
	if err := pipe.Acknowledge(); err != nil {
		return err
	}

	a.mutex.Lock()
	a.lineCoding = lc
	uart := a.uart
	cb := a.onLineCodingChange
	a.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentCDC, "line coding set", "coding", lc.String())

	// Unsupported frames leave the UART as it was.
	if uart != nil && lc.Supported() {
		if err := uart.Configure(lc); err != nil {
			pkg.LogWarn(pkg.ComponentCDC, "configure UART", "coding", lc.String(), "error", err)
		}
	}
	if cb != nil {
		cb(lc)
	}
	return nil
}

func (a *ACM) setControlLineState(value uint16, pipe hal.ControlPipe) error {
	if err := pipe.Acknowledge(); err != nil {
		return err
	}

	a.mutex.Lock()
	a.controlState = value
	uart := a.uart
	cb := a.onControlStateChange
	a.mutex.Unlock()

	dtr := value&ControlLineDTR != 0
	rts := value&ControlLineRTS != 0
	pkg.LogDebug(pkg.ComponentCDC, "control line state set", "dtr", dtr, "rts", rts)

	if lines, ok := uart.(ControlLines); ok {
		if err := lines.SetControlLines(dtr, rts); err != nil {
			pkg.LogWarn(pkg.ComponentCDC, "set control lines", "error", err)
		}
	}
	if cb != nil {
		cb(dtr, rts)
	}
	return nil
}

func (a *ACM) sendBreak(millis uint16, pipe hal.ControlPipe) error {
	if err := pipe.Acknowledge(); err != nil {
		return err
	}

	a.mutex.RLock()
	cb := a.onBreak
	a.mutex.RUnlock()

	pkg.LogDebug(pkg.ComponentCDC, "break signaled", "duration_ms", millis)
	if cb != nil {
		cb(millis)
	}
	return nil
}

// SerialStateNotificationSize is the size of a SERIAL_STATE notification.
const SerialStateNotificationSize = 10

// SendSerialState sends a SERIAL_STATE notification for the control
// interface iface.
func (a *ACM) SendSerialState(iface uint8, state uint16) error {
	if !a.Configured() {
		return pkg.ErrNotConfigured
	}
	if !a.dev.IsINReady(a.eps.Notify) {
		return pkg.ErrBusy
	}

	var buf [SerialStateNotificationSize]byte
	req := device.SetupPacket{
		RequestType: requestTypeClassIn,
		Request:     NotificationSerialState,
		Index:       uint16(iface),
		Length:      2,
	}
	req.MarshalTo(buf[:])
	binary.LittleEndian.PutUint16(buf[8:], state)

	_, err := a.dev.Write(a.eps.Notify, buf[:])
	return err
}

var _ device.ClassHandler = (*ACM)(nil)
