package cdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/ardnew/geckousb/pkg"
)

func TestSerialMode(t *testing.T) {
	tests := []struct {
		lc   LineCoding
		want serial.Mode
	}{
		{DefaultLineCoding, serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
		{LineCoding{DTERate: 9600, CharFormat: StopBits2, ParityType: ParityEven, DataBits: 7},
			serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{LineCoding{DTERate: 300, CharFormat: StopBits1_5, ParityType: ParityOdd, DataBits: 5},
			serial.Mode{BaudRate: 300, DataBits: 5, Parity: serial.OddParity, StopBits: serial.OnePointFiveStopBits}},
		{LineCoding{DTERate: 1200, ParityType: ParityMark, DataBits: 6},
			serial.Mode{BaudRate: 1200, DataBits: 6, Parity: serial.MarkParity, StopBits: serial.OneStopBit}},
		{LineCoding{DTERate: 1200, ParityType: ParitySpace, DataBits: 6},
			serial.Mode{BaudRate: 1200, DataBits: 6, Parity: serial.SpaceParity, StopBits: serial.OneStopBit}},
	}

	for _, tt := range tests {
		t.Run(tt.lc.String(), func(t *testing.T) {
			mode, err := serialMode(tt.lc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *mode)
		})
	}

	_, err := serialMode(LineCoding{DTERate: 9600, DataBits: 9})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = serialMode(LineCoding{DTERate: 9600, DataBits: 16})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = serialMode(LineCoding{DataBits: 8})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestModemState(t *testing.T) {
	tests := []struct {
		bits serial.ModemStatusBits
		want uint16
	}{
		{serial.ModemStatusBits{}, 0},
		{serial.ModemStatusBits{CTS: true}, 0},
		{serial.ModemStatusBits{DCD: true}, SerialStateRxCarrier},
		{serial.ModemStatusBits{DSR: true, RI: true}, SerialStateTxCarrier | SerialStateRingSignal},
		{serial.ModemStatusBits{CTS: true, DSR: true, RI: true, DCD: true},
			SerialStateRxCarrier | SerialStateTxCarrier | SerialStateRingSignal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, modemState(&tt.bits))
	}
}

func TestSerialPort_Receive(t *testing.T) {
	p := &SerialPort{rx: make(chan []byte, rxDepth)}

	buf := make([]byte, 4)
	assert.Zero(t, p.Receive(buf))

	p.rx <- []byte("abc")
	p.rx <- []byte("defgh")
	assert.Equal(t, 4, p.Receive(buf))
	assert.Equal(t, "abcd", string(buf))
	assert.Equal(t, 4, p.Receive(buf))
	assert.Equal(t, "efgh", string(buf))
	assert.Zero(t, p.Receive(buf))

	p.Push([]byte("xy"))
	p.rx <- []byte("z")
	close(p.rx)
	assert.Equal(t, 3, p.Receive(buf))
	assert.Equal(t, "xyz", string(buf[:3]))
	assert.Zero(t, p.Receive(buf))
}
