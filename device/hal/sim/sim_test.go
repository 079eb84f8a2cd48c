package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
)

func TestNew(t *testing.T) {
	c := New(0)
	assert.Len(t, c.DMA(), DefaultDMASize)
	assert.False(t, c.Attached())
	assert.False(t, c.Powered())
	assert.Equal(t, uint32(dmaBase+16), c.DMAAddress(16))

	assert.Len(t, New(64).DMA(), 64)
}

func TestStore_SideEffects(t *testing.T) {
	c := New(0)

	c.Store(reg.IFS, reg.IF_VREGOSH)
	assert.Equal(t, uint32(reg.IF_VREGOSH), c.Load(reg.IF))
	c.Store(reg.IFC, reg.IF_VREGOSH)
	assert.Zero(t, c.Load(reg.IF))

	// AHB idle reads set unless stuck.
	assert.NotZero(t, c.Load(reg.GRSTCTL)&reg.GRSTCTL_AHBIDLE)
	c.SetStuckAHBIdle(true)
	assert.Zero(t, c.Load(reg.GRSTCTL)&reg.GRSTCTL_AHBIDLE)

	c.Store(reg.GRSTCTL, reg.GRSTCTL_CSFTRST)
	assert.Zero(t, c.Load(reg.GRSTCTL)&reg.GRSTCTL_CSFTRST)
	c.SetStuckReset(true)
	c.Store(reg.GRSTCTL, reg.GRSTCTL_CSFTRST)
	assert.NotZero(t, c.Load(reg.GRSTCTL)&reg.GRSTCTL_CSFTRST)
	assert.Equal(t, 2, c.SoftResets())

	c.Store(reg.GRSTCTL, reg.GRSTCTL_TXFFLSH|reg.GRSTCTL_RXFFLSH)
	assert.Equal(t, 1, c.Flushes())
	assert.Equal(t, 3, c.Writes(reg.GRSTCTL))
}

func TestLine_Delivery(t *testing.T) {
	c := New(0)
	line := c.Line()

	calls := 0
	line.SetHandler(func() {
		calls++
		// Acknowledge the request, as a driver would.
		c.Store(reg.GINTSTS, reg.GINT_SOF)
	})
	c.Store(reg.GAHBCFG, reg.GAHBCFG_GLBLINTRMSK)
	c.Store(reg.GINTMSK, reg.GINT_SOF)
	c.regs[reg.GINTSTS] |= reg.GINT_SOF

	// Masked lines hold the request.
	assert.False(t, line.Enabled())
	line.service()
	assert.Zero(t, calls)

	line.Enable()
	assert.Equal(t, 1, calls)

	assert.True(t, line.Disable())
	assert.False(t, line.Disable())
}

func TestLine_StuckRequest(t *testing.T) {
	c := New(0)
	calls := 0
	c.Line().SetHandler(func() { calls++ })
	c.Store(reg.GAHBCFG, reg.GAHBCFG_GLBLINTRMSK)
	c.Store(reg.GINTMSK, reg.GINT_SOF)
	c.regs[reg.GINTSTS] |= reg.GINT_SOF

	c.Line().Enable()
	assert.Equal(t, maxDeliveries, calls)
}

func TestBus_Detached(t *testing.T) {
	c := New(0)
	c.PowerOn()
	assert.True(t, c.Powered())

	assert.ErrorIs(t, c.BusReset(), ErrDetached)
	assert.ErrorIs(t, c.Out(1, []byte("x")), ErrDetached)
	_, err := c.Setup(hal.SetupPacket{}, nil)
	assert.ErrorIs(t, err, ErrDetached)

	c.PowerOff()
	assert.False(t, c.Powered())
}

func TestBus_NotArmed(t *testing.T) {
	c := New(0)
	c.Store(reg.ROUTE, reg.ROUTE_PHYPEN)
	c.Store(reg.DCTL, 0)
	require.True(t, c.Attached())

	_, err := c.Setup(hal.SetupPacket{}, nil)
	assert.ErrorIs(t, err, ErrNotArmed)
	assert.ErrorIs(t, c.Out(reg.NumEndpoints, nil), ErrNotArmed)

	// Packets wait for the endpoint to be enabled.
	require.NoError(t, c.Out(1, []byte("x")))
	assert.Equal(t, 1, c.Pending(1))
	assert.Empty(t, c.In(1))

	snap := c.Snapshot()
	assert.Equal(t, uint32(reg.ROUTE_PHYPEN), snap[reg.ROUTE])
}
