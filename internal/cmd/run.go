package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardnew/geckousb/device"
	"github.com/ardnew/geckousb/device/class/cdc"
	"github.com/ardnew/geckousb/device/efm32"
	"github.com/ardnew/geckousb/device/hal/sim"
	"github.com/ardnew/geckousb/internal/config"
	"github.com/ardnew/geckousb/internal/usbid"
	"github.com/ardnew/geckousb/pkg"
	"github.com/ardnew/geckousb/pkg/prof"
)

// Globals are the root flags commands need.
type Globals struct {
	Profile string
}

// Run enumerates the simulated device, then feeds standard input to its
// bulk OUT endpoint and writes what it sends on bulk IN to standard
// output. With --port the device bridges to a host serial port; without
// it the device echoes.
type Run struct {
	Port     string `help:"Host serial port to bridge to; echo when unset" placeholder:"DEVICE"`
	Baud     uint32 `help:"Line rate the simulated host selects" default:"115200"`
	DataBits uint8  `help:"Data bits the simulated host selects" default:"8"`
	Parity   string `help:"Parity the simulated host selects" default:"none" enum:"none,odd,even,mark,space"`
	StopBits string `help:"Stop bits the simulated host selects" default:"1" enum:"1,1.5,2"`
	Address  uint8  `help:"USB address the simulated host assigns" default:"7"`

	CPUProfile string `name:"cpuprofile" help:"Write a CPU profile of the session to FILE" placeholder:"FILE" type:"path"`
	MemProfile string `name:"memprofile" help:"Write a heap profile to FILE when the session ends" placeholder:"FILE" type:"path"`
}

// lineCoding returns the coding the simulated host selects.
func (r *Run) lineCoding() cdc.LineCoding {
	lc := cdc.LineCoding{DTERate: r.Baud, DataBits: r.DataBits}
	switch r.Parity {
	case "odd":
		lc.ParityType = cdc.ParityOdd
	case "even":
		lc.ParityType = cdc.ParityEven
	case "mark":
		lc.ParityType = cdc.ParityMark
	case "space":
		lc.ParityType = cdc.ParitySpace
	}
	switch r.StopBits {
	case "1.5":
		lc.CharFormat = cdc.StopBits1_5
	case "2":
		lc.CharFormat = cdc.StopBits2
	}
	return lc
}

// Validate is called by kong after parsing.
func (r *Run) Validate() error {
	if lc := r.lineCoding(); !lc.Supported() {
		return fmt.Errorf("unsupported line coding %s", lc)
	}
	return nil
}

// Run is called by kong when the run command is executed.
func (r *Run) Run(g Globals, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := prof.Start(r.CPUProfile, r.MemProfile)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Stop(); err != nil {
			logger.Warn("profiling", "error", err)
		}
	}()

	profile, source, err := loadProfile(g.Profile)
	if err != nil {
		return err
	}
	logger.Info("profile loaded", "source", sourceName(source))

	port, err := newPort(profile)
	if err != nil {
		return err
	}
	e, err := port.enumerate(r.Address, r.lineCoding())
	if err != nil {
		return err
	}
	db := usbid.New()
	if err := db.Load(); err != nil {
		logger.Debug("usb.ids unavailable", "error", err)
	}
	logger.Info("virtual serial port enumerated",
		"vid", fmt.Sprintf("%04X", e.Device.VendorID),
		"pid", fmt.Sprintf("%04X", e.Device.ProductID),
		"vendor", db.Vendor(e.Device.VendorID),
		"manufacturer", e.Manufacturer,
		"product", e.Product,
		"coding", port.acm.LineCoding().String())

	var uart *cdc.SerialPort
	if r.Port != "" {
		uart, err = cdc.OpenSerial(r.Port, port.acm.LineCoding())
		if err != nil {
			return err
		}
		defer uart.Close()
		port.acm.SetUART(uart)
	}
	return port.serve(ctx, logger, os.Stdin, os.Stdout, uart)
}

func sourceName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

// simPort is a simulated controller running the virtual serial function
// with a scripted host attached.
type simPort struct {
	sim  *sim.Controller
	ctrl *efm32.Controller
	host *sim.Host
	acm  *cdc.ACM
	eps  cdc.Endpoints
}

func newPort(profile config.Profile) (*simPort, error) {
	eps := profile.CDCEndpoints()
	descs, err := cdc.DemoDescriptors(profile.CDCIdentity(), eps, uint8(profile.Endpoints.ControlSize))
	if err != nil {
		return nil, err
	}

	s := sim.New(0)
	ctrl := efm32.New(s, s.Line(), profile.DriverConfig())
	acm := cdc.NewACM(ctrl, eps)
	ctrl.SetRequestHandler(device.NewProcessor(descs, acm))
	ctrl.SetOnConfigurationChanged(acm.ConfigurationChanged)
	if err := ctrl.Initialize(profile.EndpointTable()); err != nil {
		return nil, fmt.Errorf("initialize controller: %w", err)
	}
	return &simPort{sim: s, ctrl: ctrl, host: sim.NewHost(s), acm: acm, eps: eps}, nil
}

// enumerate runs host enumeration and opens the port the way a terminal
// program does: line coding first, then DTR and RTS.
func (p *simPort) enumerate(address uint8, lc cdc.LineCoding) (*sim.Enumeration, error) {
	e, err := p.host.Enumerate(address)
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	var buf [cdc.LineCodingSize]byte
	lc.MarshalTo(buf[:])
	if err := p.host.ClassOut(cdc.RequestSetLineCoding, 0, cdc.InterfaceControl, buf[:]); err != nil {
		return nil, fmt.Errorf("set line coding: %w", err)
	}
	if err := p.host.ClassOut(cdc.RequestSetControlLineState,
		cdc.ControlLineDTR|cdc.ControlLineRTS, cdc.InterfaceControl, nil); err != nil {
		return nil, fmt.Errorf("set control lines: %w", err)
	}
	return e, nil
}

// step moves data until the device has nothing left to do.
func (p *simPort) step(uart cdc.UART) error {
	for {
		var n int
		var err error
		if uart != nil {
			n, err = p.acm.Step(uart)
		} else {
			n, err = p.acm.EchoStep()
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// send queues data on bulk OUT in packet-sized pieces.
func (p *simPort) send(data []byte) error {
	size := int(p.eps.DataSize)
	for len(data) > 0 {
		n := min(size, len(data))
		if err := p.sim.Out(p.eps.Out, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// flush writes the packets the device sent on bulk IN to w.
func (p *simPort) flush(w io.Writer) (int, error) {
	total := 0
	for _, pkt := range p.sim.In(p.eps.In) {
		n, err := w.Write(pkt)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// modemLines reports the UART's modem inputs as SERIAL_STATE bits.
type modemLines interface {
	SerialState() (uint16, error)
}

// notifyState sends a SERIAL_STATE notification when the modem inputs
// differ from last. A busy notification endpoint leaves last unchanged so
// the change is sent on a later pass.
func (p *simPort) notifyState(m modemLines, last *uint16) error {
	state, err := m.SerialState()
	if err != nil {
		pkg.LogDebug(pkg.ComponentCDC, "modem status unavailable", "error", err)
		return nil
	}
	if state == *last {
		return nil
	}
	switch err := p.acm.SendSerialState(cdc.InterfaceControl, state); {
	case errors.Is(err, pkg.ErrBusy), errors.Is(err, pkg.ErrNotConfigured):
		return nil
	case err != nil:
		return fmt.Errorf("serial state: %w", err)
	}
	*last = state
	return nil
}

// serve runs the single simulation loop. Readers of stdin and of the
// serial port run on their own goroutines and hand their data over on
// channels; the controller is only touched here.
func (p *simPort) serve(ctx context.Context, logger *slog.Logger, in io.Reader, out io.Writer, uart *cdc.SerialPort) error {
	input := make(chan []byte)
	inputErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				select {
				case input <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				inputErr <- err
				return
			}
		}
	}()

	var serial <-chan []byte
	var bridge cdc.UART
	var modem modemLines
	if uart != nil {
		serial = uart.Ready()
		bridge = uart
		modem = uart
	}
	var state uint16

	var toDevice, fromDevice int
	defer func() {
		logger.Info("session closed", "sent", toDevice, "received", fromDevice)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inputErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		case data := <-input:
			toDevice += len(data)
			if err := p.send(data); err != nil {
				return err
			}
		case chunk, ok := <-serial:
			if !ok {
				if err := uart.Err(); err != nil {
					return fmt.Errorf("serial port: %w", err)
				}
				return nil
			}
			uart.Push(chunk)
		}

		if err := p.step(bridge); err != nil {
			return err
		}
		if modem != nil {
			if err := p.notifyState(modem, &state); err != nil {
				return err
			}
		}
		n, err := p.flush(out)
		fromDevice += n
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}
