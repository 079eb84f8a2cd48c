package cdc

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/ardnew/geckousb/pkg"
)

// UART is the serial line on the far side of the bridge.
type UART interface {
	// Configure programs the line. It is only called with codings for
	// which LineCoding.Supported is true.
	Configure(lc LineCoding) error

	// Transmit sends data on the line.
	Transmit(data []byte) error

	// Receive copies bytes already received into buf without blocking and
	// returns how many were copied.
	Receive(buf []byte) int
}

// ControlLines is implemented by UARTs that can drive DTR and RTS.
type ControlLines interface {
	SetControlLines(dtr, rts bool) error
}

// Step moves at most one packet in each direction between the USB data
// endpoints and uart: a received bulk OUT packet is transmitted on the
// line, then bytes waiting on the line are sent as one bulk IN packet.
// It returns the number of bytes moved.
func (a *ACM) Step(uart UART) (int, error) {
	if !a.Configured() {
		return 0, pkg.ErrNotConfigured
	}
	var buf [512]byte
	moved := 0

	if a.dev.IsOUTReceived(a.eps.Out) {
		n, err := a.dev.Read(a.eps.Out, buf[:])
		if err != nil {
			return moved, fmt.Errorf("bulk OUT: %w", err)
		}
		if err := a.dev.ClearOUT(a.eps.Out); err != nil {
			return moved, fmt.Errorf("bulk OUT: %w", err)
		}
		if err := uart.Transmit(buf[:n]); err != nil {
			return moved, fmt.Errorf("UART transmit: %w", err)
		}
		moved += n
	}

	if !a.dev.IsINReady(a.eps.In) {
		return moved, nil
	}
	size := min(int(a.eps.DataSize), len(buf))
	if n := uart.Receive(buf[:size]); n > 0 {
		if _, err := a.dev.Write(a.eps.In, buf[:n]); err != nil {
			return moved, fmt.Errorf("bulk IN: %w", err)
		}
		moved += n
	}
	return moved, nil
}

// EchoStep loops one received bulk OUT packet back to bulk IN. It returns
// the number of bytes echoed.
func (a *ACM) EchoStep() (int, error) {
	if !a.Configured() {
		return 0, pkg.ErrNotConfigured
	}
	if !a.dev.IsOUTReceived(a.eps.Out) || !a.dev.IsINReady(a.eps.In) {
		return 0, nil
	}
	var buf [512]byte
	n, err := a.dev.Read(a.eps.Out, buf[:])
	if err != nil {
		return 0, fmt.Errorf("bulk OUT: %w", err)
	}
	if err := a.dev.ClearOUT(a.eps.Out); err != nil {
		return 0, fmt.Errorf("bulk OUT: %w", err)
	}
	if _, err := a.dev.Write(a.eps.In, buf[:n]); err != nil {
		return 0, fmt.Errorf("bulk IN: %w", err)
	}
	return n, nil
}

// Bridge runs Step until ctx is done. Errors from an unconfigured port are
// not fatal; the bridge waits for the host to configure the device.
func (a *ACM) Bridge(ctx context.Context, uart UART) error {
	return a.loop(ctx, func() (int, error) { return a.Step(uart) })
}

// Echo runs EchoStep until ctx is done.
func (a *ACM) Echo(ctx context.Context) error {
	return a.loop(ctx, a.EchoStep)
}

func (a *ACM) loop(ctx context.Context, step func() (int, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := step()
		switch {
		case err == nil:
		case errors.Is(err, pkg.ErrNotConfigured), errors.Is(err, pkg.ErrNotReady), errors.Is(err, pkg.ErrBusy):
			// A reset or deconfiguration raced the step.
		default:
			return err
		}
		if n == 0 {
			runtime.Gosched()
		}
	}
}
