package cdc_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/pkg"
)

func TestStep(t *testing.T) {
	p := newPort(t)
	uart := &fakeUART{}

	_, err := p.acm.Step(uart)
	assert.ErrorIs(t, err, pkg.ErrNotConfigured)

	p.enumerate(t)
	n, err := p.acm.Step(uart)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, p.sim.Out(3, []byte("hello")))
	uart.waiting = []byte("world")
	n, err = p.acm.Step(uart)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "hello", string(uart.sent))
	assert.Equal(t, [][]byte{[]byte("world")}, p.sim.In(2))

	// The OUT endpoint is re-armed for the next packet.
	require.NoError(t, p.sim.Out(3, []byte("again")))
	assert.Zero(t, p.sim.Pending(3))
}

func TestStep_PacketSized(t *testing.T) {
	p := newPort(t)
	p.enumerate(t)
	uart := &fakeUART{waiting: bytes.Repeat([]byte{'z'}, 100)}

	n, err := p.acm.Step(uart)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	n, err = p.acm.Step(uart)
	require.NoError(t, err)
	assert.Equal(t, 36, n)

	packets := p.sim.In(2)
	require.Len(t, packets, 2)
	assert.Len(t, packets[0], 64)
	assert.Len(t, packets[1], 36)
}

func TestEchoStep(t *testing.T) {
	p := newPort(t)
	_, err := p.acm.EchoStep()
	assert.ErrorIs(t, err, pkg.ErrNotConfigured)

	p.enumerate(t)
	n, err := p.acm.EchoStep()
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, msg := range []string{"ping", "pong"} {
		require.NoError(t, p.sim.Out(3, []byte(msg)))
		n, err = p.acm.EchoStep()
		require.NoError(t, err)
		assert.Equal(t, len(msg), n)
		assert.Equal(t, [][]byte{[]byte(msg)}, p.sim.In(2))
	}
}

type failingUART struct{ fakeUART }

var errLine = errors.New("line fault")

func (*failingUART) Transmit([]byte) error { return errLine }

func TestBridge(t *testing.T) {
	t.Run("waits for configuration", func(t *testing.T) {
		p := newPort(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, p.acm.Bridge(ctx, &fakeUART{}), context.DeadlineExceeded)
	})

	t.Run("cancelled", func(t *testing.T) {
		p := newPort(t)
		p.enumerate(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.acm.Echo(ctx), context.Canceled)
	})

	t.Run("UART failure", func(t *testing.T) {
		p := newPort(t)
		p.enumerate(t)
		require.NoError(t, p.sim.Out(3, []byte("x")))
		err := p.acm.Bridge(context.Background(), &failingUART{})
		assert.ErrorIs(t, err, errLine)
	})
}
