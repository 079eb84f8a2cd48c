package efm32

import (
	"fmt"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// ConfigureEndpoint activates an endpoint from the table for the selected
// configuration. typ must match the table entry, size may not exceed the
// table's packet size, and banks is 1 or 2. The core has no per-endpoint
// bank setting: FIFO depth is fixed by the allocator at Initialize, which
// already gives bulk endpoints room for two packets, so banks is only
// checked. It reports false for endpoints that are not in the table or do
// not match it.
func (c *Controller) ConfigureEndpoint(address, typ uint8, size uint16, banks uint8) bool {
	g := c.enterCritical()
	defer g.exit()

	ep, ok := c.endpoints.lookup(address)
	switch {
	case !ok:
		pkg.LogWarn(pkg.ComponentEndpoint, "configure unknown endpoint", "ep", fmt.Sprintf("0x%02X", address))
		return false
	case ep.Type != typ || size == 0 || banks == 0 || banks > 2:
		pkg.LogWarn(pkg.ComponentEndpoint, "endpoint configuration mismatch",
			"ep", fmt.Sprintf("0x%02X", address), "type", typ, "size", size, "banks", banks)
		return false
	case ep.IsControl():
		return true
	}

	if size > ep.maxPacket {
		pkg.LogWarn(pkg.ComponentEndpoint, "endpoint size exceeds table",
			"ep", fmt.Sprintf("0x%02X", address), "size", size, "max", ep.maxPacket)
		return false
	}
	ep.PacketSize = size
	c.activateEndpoint(ep)
	return true
}

// deactivateEndpoints stops every non-control endpoint and drops pending
// transfers.
func (c *Controller) deactivateEndpoints() {
	for i := range c.endpoints.all() {
		ep := &c.endpoints.eps[i]
		if ep.IsControl() || !ep.configured {
			continue
		}
		off := epctl(ep)
		ctl := c.regs.Load(off) &^ (reg.EPCTL_WO_MASK | reg.EPCTL_USBACTEP | reg.EPCTL_STALL)
		c.regs.Store(off, ctl|reg.EPCTL_SNAK)
		bit := uint32(1) << ep.Number
		if !ep.In {
			bit <<= reg.DAINT_OUT_SHIFT
		}
		c.regs.Store(reg.DAINTMSK, c.regs.Load(reg.DAINTMSK)&^bit)
	}
	c.endpoints.abort()
}

// SelectEndpoint makes address the current endpoint.
func (c *Controller) SelectEndpoint(address uint8) {
	g := c.enterCritical()
	defer g.exit()
	c.selected = address
}

// CurrentEndpoint returns the selected endpoint address.
func (c *Controller) CurrentEndpoint() uint8 {
	g := c.enterCritical()
	defer g.exit()
	return c.selected
}

// stream resolves an active non-control endpoint of the given direction.
func (c *Controller) stream(address uint8, in bool) (*EndpointState, error) {
	if c.state != hal.StateConfigured {
		return nil, fmt.Errorf("endpoint 0x%02X in %s: %w", address, c.state, pkg.ErrNotConfigured)
	}
	ep, ok := c.endpoints.lookup(address)
	if !ok || ep.IsControl() || ep.In != in || !ep.configured {
		return nil, fmt.Errorf("endpoint 0x%02X: %w", address, pkg.ErrInvalidEndpoint)
	}
	return ep, nil
}

// IsOUTReceived reports whether an OUT packet is waiting to be read.
func (c *Controller) IsOUTReceived(address uint8) bool {
	g := c.enterCritical()
	defer g.exit()
	ep, err := c.stream(address, false)
	return err == nil && ep.received
}

// Read copies the received OUT packet into buf. The packet stays in place
// until ClearOUT releases it. pkg.ErrNotReady means nothing was received.
func (c *Controller) Read(address uint8, buf []byte) (int, error) {
	g := c.enterCritical()
	defer g.exit()

	ep, err := c.stream(address, false)
	if err != nil {
		return 0, err
	}
	if !ep.received {
		return 0, pkg.ErrNotReady
	}
	n := ep.BytesTransferred
	if len(buf) < n {
		return 0, fmt.Errorf("%d byte packet: %w", n, pkg.ErrBufferTooSmall)
	}
	return copy(buf, c.regs.DMA()[ep.BufferOffset:ep.BufferOffset+n]), nil
}

// ClearOUT releases the received packet and arms the endpoint for the next
// one. It is a no-op while the endpoint is already armed.
func (c *Controller) ClearOUT(address uint8) error {
	g := c.enterCritical()
	defer g.exit()

	ep, err := c.stream(address, false)
	if err != nil {
		return err
	}
	if ep.Lifecycle == LifecycleActive {
		return nil
	}
	ep.received = false
	ep.requested = int(ep.PacketSize)
	ep.BytesRemaining = ep.requested
	ep.Lifecycle = LifecycleActive
	c.regs.Store(reg.DOEPTSIZ(ep.Number), 1<<reg.TSIZ_PKTCNT_SHIFT|uint32(ep.requested))
	c.regs.Store(reg.DOEPDMAADDR(ep.Number), c.regs.DMAAddress(ep.BufferOffset))
	ctl := c.regs.Load(reg.DOEPCTL(ep.Number)) &^ reg.EPCTL_WO_MASK
	c.regs.Store(reg.DOEPCTL(ep.Number), ctl|reg.EPCTL_CNAK|reg.EPCTL_EPENA)
	return nil
}

// Write queues one IN packet of up to the endpoint's packet size and
// returns the number of bytes taken from data. An empty data sends a
// zero-length packet. pkg.ErrBusy means the previous packet is still in
// flight.
func (c *Controller) Write(address uint8, data []byte) (int, error) {
	g := c.enterCritical()
	defer g.exit()

	ep, err := c.stream(address, true)
	if err != nil {
		return 0, err
	}
	switch {
	case ep.halted:
		return 0, fmt.Errorf("endpoint 0x%02X: %w", address, pkg.ErrStall)
	case ep.Lifecycle == LifecycleActive:
		return 0, pkg.ErrBusy
	}

	n := min(len(data), int(ep.PacketSize))
	copy(c.regs.DMA()[ep.BufferOffset:], data[:n])
	ep.requested = n
	ep.BytesRemaining = n
	ep.Lifecycle = LifecycleActive
	c.regs.Store(reg.DIEPTSIZ(ep.Number), 1<<reg.TSIZ_PKTCNT_SHIFT|uint32(n))
	c.regs.Store(reg.DIEPDMAADDR(ep.Number), c.regs.DMAAddress(ep.BufferOffset))
	ctl := c.regs.Load(reg.DIEPCTL(ep.Number)) &^ reg.EPCTL_WO_MASK
	c.regs.Store(reg.DIEPCTL(ep.Number), ctl|reg.EPCTL_CNAK|reg.EPCTL_EPENA)
	return n, nil
}

// IsINReady reports whether Write would accept a packet.
func (c *Controller) IsINReady(address uint8) bool {
	g := c.enterCritical()
	defer g.exit()
	ep, err := c.stream(address, true)
	return err == nil && !ep.halted && ep.Lifecycle == LifecycleIdle
}

// SetCompletion installs the callback for the next transfer completing on
// address. It is cleared once invoked.
func (c *Controller) SetCompletion(address uint8, cb CompletionFunc) error {
	g := c.enterCritical()
	defer g.exit()
	ep, ok := c.endpoints.lookup(address)
	if !ok {
		return fmt.Errorf("endpoint 0x%02X: %w", address, pkg.ErrInvalidEndpoint)
	}
	ep.complete = cb
	return nil
}
