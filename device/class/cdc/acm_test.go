package cdc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/class/cdc"
	"github.com/ardnew/geckousb/device/efm32"
	"github.com/ardnew/geckousb/device/hal/sim"
	"github.com/ardnew/geckousb/pkg"
)

type fakeUART struct {
	codings []cdc.LineCoding
	lines   [][2]bool
	sent    []byte
	waiting []byte
}

func (u *fakeUART) Configure(lc cdc.LineCoding) error {
	u.codings = append(u.codings, lc)
	return nil
}

func (u *fakeUART) Transmit(data []byte) error {
	u.sent = append(u.sent, data...)
	return nil
}

func (u *fakeUART) Receive(buf []byte) int {
	n := copy(buf, u.waiting)
	u.waiting = u.waiting[n:]
	return n
}

func (u *fakeUART) SetControlLines(dtr, rts bool) error {
	u.lines = append(u.lines, [2]bool{dtr, rts})
	return nil
}

type port struct {
	acm  *cdc.ACM
	ctrl *efm32.Controller
	sim  *sim.Controller
	host *sim.Host
}

func newPort(t *testing.T) *port {
	t.Helper()
	s := sim.New(0)
	c := efm32.New(s, s.Line(), efm32.Config{PollLimit: 64, Sleep: func(time.Duration) {}})

	id := cdc.DefaultIdentity
	id.SerialNumber = "0001"
	descs, err := cdc.DemoDescriptors(id, cdc.DefaultEndpoints, 64)
	require.NoError(t, err)

	acm := cdc.NewACM(c, cdc.DefaultEndpoints)
	c.SetRequestHandler(device.NewProcessor(descs, acm))
	c.SetOnConfigurationChanged(acm.ConfigurationChanged)
	require.NoError(t, c.Initialize(cdc.DefaultEndpoints.Table(64)))

	return &port{acm: acm, ctrl: c, sim: s, host: sim.NewHost(s)}
}

func (p *port) enumerate(t *testing.T) *sim.Enumeration {
	t.Helper()
	e, err := p.host.Enumerate(3)
	require.NoError(t, err)
	return e
}

var coding115200 = []byte{0x00, 0xC2, 0x01, 0x00, 0x00, 0x00, 0x08}

func TestACM_Enumerate(t *testing.T) {
	p := newPort(t)
	assert.False(t, p.acm.Configured())

	e := p.enumerate(t)
	assert.Equal(t, uint16(0x10C4), e.Device.VendorID)
	assert.Equal(t, uint16(0x89A1), e.Device.ProductID)
	assert.Equal(t, uint8(device.ClassCDC), e.Device.DeviceClass)
	assert.Equal(t, "Silicon Laboratories Inc.", e.Manufacturer)
	assert.Equal(t, "EFM32 CDC Device", e.Product)
	assert.Equal(t, "0001", e.SerialNumber)
	assert.Equal(t, cdc.Configuration(cdc.DefaultIdentity, cdc.DefaultEndpoints), e.Configuration)
	require.Len(t, e.Interfaces, 2)
	assert.Equal(t, uint8(device.ClassCDC), e.Interfaces[0].InterfaceClass)
	assert.Equal(t, uint8(1), e.Interfaces[0].NumEndpoints)
	assert.Equal(t, uint8(device.ClassCDCData), e.Interfaces[1].InterfaceClass)
	assert.Equal(t, uint8(2), e.Interfaces[1].NumEndpoints)

	assert.True(t, p.acm.Configured())
	assert.Equal(t, uint8(1), p.ctrl.Configuration())

	// Bulk OUT is primed by the configuration callback.
	require.NoError(t, p.sim.Out(3, []byte("x")))
	assert.True(t, p.ctrl.IsOUTReceived(0x03))
}

func TestACM_LineCoding(t *testing.T) {
	p := newPort(t)
	uart := &fakeUART{}
	p.acm.SetUART(uart)
	var changed []cdc.LineCoding
	p.acm.SetOnLineCodingChange(func(lc cdc.LineCoding) { changed = append(changed, lc) })
	p.enumerate(t)

	got, err := p.host.ClassIn(cdc.RequestGetLineCoding, 0, cdc.InterfaceControl, cdc.LineCodingSize)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 8}, got)

	require.NoError(t, p.host.ClassOut(cdc.RequestSetLineCoding, 0, cdc.InterfaceControl, coding115200))
	want := cdc.LineCoding{DTERate: 115200, CharFormat: cdc.StopBits1, ParityType: cdc.ParityNone, DataBits: 8}
	assert.Equal(t, want, p.acm.LineCoding())
	assert.Equal(t, []cdc.LineCoding{want}, uart.codings)
	assert.Equal(t, []cdc.LineCoding{want}, changed)

	got, err = p.host.ClassIn(cdc.RequestGetLineCoding, 0, cdc.InterfaceControl, cdc.LineCodingSize)
	require.NoError(t, err)
	assert.Equal(t, coding115200, got)
}

func TestACM_LineCodingUnsupported(t *testing.T) {
	p := newPort(t)
	uart := &fakeUART{}
	p.acm.SetUART(uart)
	p.enumerate(t)

	// 16 data bits is stored and reported but never reaches the UART.
	wide := []byte{0x80, 0x25, 0x00, 0x00, 0x00, 0x00, 16}
	require.NoError(t, p.host.ClassOut(cdc.RequestSetLineCoding, 0, cdc.InterfaceControl, wide))
	assert.Equal(t, uint8(16), p.acm.LineCoding().DataBits)
	assert.Empty(t, uart.codings)

	got, err := p.host.ClassIn(cdc.RequestGetLineCoding, 0, cdc.InterfaceControl, cdc.LineCodingSize)
	require.NoError(t, err)
	assert.Equal(t, wide, got)
}

func TestACM_LineCodingShort(t *testing.T) {
	p := newPort(t)
	p.enumerate(t)

	err := p.host.ClassOut(cdc.RequestSetLineCoding, 0, cdc.InterfaceControl, coding115200[:3])
	assert.ErrorIs(t, err, sim.ErrStalled)
	assert.Zero(t, p.acm.LineCoding().DTERate)
}

func TestACM_ControlLineState(t *testing.T) {
	p := newPort(t)
	uart := &fakeUART{}
	p.acm.SetUART(uart)
	var dtr, rts bool
	p.acm.SetOnControlStateChange(func(d, r bool) { dtr, rts = d, r })
	p.enumerate(t)

	require.NoError(t, p.host.ClassOut(cdc.RequestSetControlLineState,
		cdc.ControlLineDTR|cdc.ControlLineRTS, cdc.InterfaceControl, nil))
	assert.True(t, p.acm.DTR())
	assert.True(t, p.acm.RTS())
	assert.True(t, dtr)
	assert.True(t, rts)

	require.NoError(t, p.host.ClassOut(cdc.RequestSetControlLineState,
		cdc.ControlLineDTR, cdc.InterfaceControl, nil))
	assert.True(t, p.acm.DTR())
	assert.False(t, p.acm.RTS())
	assert.False(t, rts)
	assert.Equal(t, [][2]bool{{true, true}, {true, false}}, uart.lines)
}

func TestACM_SendBreak(t *testing.T) {
	p := newPort(t)
	var millis uint16
	p.acm.SetOnBreak(func(ms uint16) { millis = ms })
	p.enumerate(t)

	require.NoError(t, p.host.ClassOut(cdc.RequestSendBreak, 250, cdc.InterfaceControl, nil))
	assert.Equal(t, uint16(250), millis)
}

func TestACM_UnknownRequestStalls(t *testing.T) {
	p := newPort(t)
	p.enumerate(t)

	// SET_COMM_FEATURE is not advertised.
	err := p.host.ClassOut(0x02, 0, cdc.InterfaceControl, []byte{0, 0})
	assert.ErrorIs(t, err, sim.ErrStalled)

	// GET_LINE_CODING with the wrong direction.
	err = p.host.ClassOut(cdc.RequestGetLineCoding, 0, cdc.InterfaceControl, coding115200)
	assert.ErrorIs(t, err, sim.ErrStalled)
}

func TestACM_ConfigurationChanged(t *testing.T) {
	p := newPort(t)
	p.enumerate(t)
	require.NoError(t, p.host.ClassOut(cdc.RequestSetLineCoding, 0, cdc.InterfaceControl, coding115200))
	require.Equal(t, uint32(115200), p.acm.LineCoding().DTERate)

	// Reconfiguring resets the rate and keeps the frame.
	require.NoError(t, p.host.SetConfiguration(1))
	lc := p.acm.LineCoding()
	assert.Zero(t, lc.DTERate)
	assert.Equal(t, uint8(8), lc.DataBits)
	assert.True(t, p.acm.Configured())

	require.NoError(t, p.host.SetConfiguration(0))
	assert.False(t, p.acm.Configured())
}

func TestACM_SendSerialState(t *testing.T) {
	p := newPort(t)
	assert.ErrorIs(t, p.acm.SendSerialState(cdc.InterfaceControl, 0), pkg.ErrNotConfigured)

	p.enumerate(t)
	require.NoError(t, p.acm.SendSerialState(cdc.InterfaceControl, cdc.SerialStateRxCarrier|cdc.SerialStateTxCarrier))

	packets := p.sim.In(1)
	require.Len(t, packets, 1)
	assert.Equal(t, []byte{0xA1, 0x20, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x03, 0x00}, packets[0])
}

func TestLineCoding(t *testing.T) {
	tests := []struct {
		lc        cdc.LineCoding
		str       string
		supported bool
	}{
		{cdc.DefaultLineCoding, "115200 8N1", true},
		{cdc.LineCoding{DTERate: 9600, CharFormat: cdc.StopBits2, ParityType: cdc.ParityEven, DataBits: 7}, "9600 7E2", true},
		{cdc.LineCoding{DTERate: 300, CharFormat: cdc.StopBits1_5, ParityType: cdc.ParitySpace, DataBits: 5}, "300 5S1.5", true},
		{cdc.LineCoding{DTERate: 0, DataBits: 8}, "0 8N1", false},
		{cdc.LineCoding{DTERate: 9600, DataBits: 16}, "9600 16N1", false},
		{cdc.LineCoding{DTERate: 9600, DataBits: 4}, "9600 4N1", false},
		{cdc.LineCoding{DTERate: 9600, DataBits: 9}, "9600 9N1", false},
		{cdc.LineCoding{DTERate: 19200, ParityType: cdc.ParityMark, DataBits: 8}, "19200 8M1", true},
		{cdc.LineCoding{DTERate: 9600, ParityType: 5, DataBits: 8}, "9600 8?1", false},
		{cdc.LineCoding{DTERate: 9600, CharFormat: 3, DataBits: 8}, "9600 8N?", false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.lc.String())
			assert.Equal(t, tt.supported, tt.lc.Supported())
		})
	}
}

func TestLineCoding_Marshal(t *testing.T) {
	var buf [cdc.LineCodingSize]byte
	lc := cdc.DefaultLineCoding
	require.Equal(t, cdc.LineCodingSize, lc.MarshalTo(buf[:]))
	assert.Equal(t, coding115200, buf[:])
	assert.Zero(t, lc.MarshalTo(buf[:6]))

	var out cdc.LineCoding
	assert.False(t, cdc.ParseLineCoding(buf[:6], &out))
	require.True(t, cdc.ParseLineCoding(buf[:], &out))
	assert.Equal(t, lc, out)
}
