package cdc

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/ardnew/geckousb/pkg"
)

// SerialPort is a UART backed by a host serial port. A background
// goroutine reads the port; Receive drains what it collected without
// blocking.
type SerialPort struct {
	name string
	port serial.Port

	rx      chan []byte
	pending []byte

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// rxDepth bounds the chunks queued between the reader and Receive.
const rxDepth = 64

// OpenSerial opens the named port with the given initial line coding.
func OpenSerial(name string, lc LineCoding) (*SerialPort, error) {
	mode, err := serialMode(lc)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	p := &SerialPort{
		name: name,
		port: port,
		rx:   make(chan []byte, rxDepth),
		done: make(chan struct{}),
	}
	go p.reader()
	pkg.LogInfo(pkg.ComponentCDC, "serial port opened", "port", name, "coding", lc.String())
	return p, nil
}

// ListSerialPorts returns the serial ports present on the host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (p *SerialPort) reader() {
	defer close(p.rx)
	buf := make([]byte, 256)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			select {
			case <-p.done:
			default:
				p.err = err
				pkg.LogWarn(pkg.ComponentCDC, "serial read", "port", p.name, "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		select {
		case p.rx <- chunk:
		case <-p.done:
			return
		}
	}
}

// Configure implements UART.
func (p *SerialPort) Configure(lc LineCoding) error {
	mode, err := serialMode(lc)
	if err != nil {
		return err
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	pkg.LogDebug(pkg.ComponentCDC, "serial port reconfigured", "port", p.name, "coding", lc.String())
	return nil
}

// Transmit implements UART.
func (p *SerialPort) Transmit(data []byte) error {
	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		data = data[n:]
	}
	return nil
}

// Receive implements UART.
func (p *SerialPort) Receive(buf []byte) int {
	n := 0
	for n < len(buf) {
		if len(p.pending) == 0 {
			select {
			case chunk, ok := <-p.rx:
				if !ok {
					return n
				}
				p.pending = chunk
			default:
				return n
			}
		}
		c := copy(buf[n:], p.pending)
		p.pending = p.pending[c:]
		n += c
	}
	return n
}

// Ready returns a channel that receives when the reader has data queued.
// The channel is closed when the port fails or is closed.
func (p *SerialPort) Ready() <-chan []byte { return p.rx }

// Push returns a chunk taken from Ready to the front of the receive queue.
func (p *SerialPort) Push(chunk []byte) {
	p.pending = append(chunk, p.pending...)
}

// SetControlLines implements ControlLines.
func (p *SerialPort) SetControlLines(dtr, rts bool) error {
	if err := p.port.SetDTR(dtr); err != nil {
		return fmt.Errorf("%s DTR: %w", p.name, err)
	}
	if err := p.port.SetRTS(rts); err != nil {
		return fmt.Errorf("%s RTS: %w", p.name, err)
	}
	return nil
}

// SerialState returns the port's modem inputs as SERIAL_STATE bits. DCD
// maps to RxCarrier and DSR to TxCarrier; RI maps to RingSignal.
func (p *SerialPort) SerialState() (uint16, error) {
	bits, err := p.port.GetModemStatusBits()
	if err != nil {
		return 0, fmt.Errorf("%s modem status: %w", p.name, err)
	}
	return modemState(bits), nil
}

func modemState(bits *serial.ModemStatusBits) uint16 {
	var state uint16
	if bits.DCD {
		state |= SerialStateRxCarrier
	}
	if bits.DSR {
		state |= SerialStateTxCarrier
	}
	if bits.RI {
		state |= SerialStateRingSignal
	}
	return state
}

// Err returns the error that stopped the reader, if any.
func (p *SerialPort) Err() error { return p.err }

// Close closes the port and stops the reader.
func (p *SerialPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.port.Close()
	})
	return err
}

// serialMode maps a line coding onto the serial port mode.
func serialMode(lc LineCoding) (*serial.Mode, error) {
	if !lc.Supported() {
		return nil, fmt.Errorf("line coding %s: %w", lc, pkg.ErrInvalidParameter)
	}
	mode := &serial.Mode{
		BaudRate: int(lc.DTERate),
		DataBits: int(lc.DataBits),
	}
	switch lc.ParityType {
	case ParityNone:
		mode.Parity = serial.NoParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityMark:
		mode.Parity = serial.MarkParity
	case ParitySpace:
		mode.Parity = serial.SpaceParity
	}
	switch lc.CharFormat {
	case StopBits1:
		mode.StopBits = serial.OneStopBit
	case StopBits1_5:
		mode.StopBits = serial.OnePointFiveStopBits
	case StopBits2:
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}

var (
	_ UART         = (*SerialPort)(nil)
	_ ControlLines = (*SerialPort)(nil)
)
