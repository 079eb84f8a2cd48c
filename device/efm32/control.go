package efm32

import (
	"fmt"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// armSetup re-enables endpoint 0 to receive up to three back-to-back SETUP
// packets into the SETUP area of the DMA window.
func (c *Controller) armSetup() {
	c.regs.Store(reg.DOEPTSIZ(0), 3<<reg.TSIZ_SUPCNT_SHIFT)
	c.regs.Store(reg.DOEPDMAADDR(0), c.regs.DMAAddress(c.setupOffset))
	ctl := c.regs.Load(reg.DOEPCTL(0)) &^ reg.EPCTL_WO_MASK
	c.regs.Store(reg.DOEPCTL(0), ctl|reg.EPCTL_CNAK|reg.EPCTL_EPENA)
}

// setupIndex returns which of the three SETUP slots the controller wrote
// last, derived from the remaining SETUP packet count.
func setupIndex(tsiz uint32) int {
	supcnt := (tsiz & reg.TSIZ_SUPCNT_MASK) >> reg.TSIZ_SUPCNT_SHIFT
	return 2 - int(min(supcnt, 2))
}

// bridgeSetup hands a received SETUP packet to the request handler with
// endpoint 0 selected, stalling the control endpoint when no handler
// accepts it.
func (c *Controller) bridgeSetup() {
	if c.inControl {
		pkg.LogWarn(pkg.ComponentControl, "SETUP during control request", "request", c.request.String())
		c.stallControl()
		return
	}

	off := c.setupOffset + setupIndex(c.regs.Load(reg.DOEPTSIZ(0)))*hal.SetupPacketSize
	if !hal.ParseSetupPacket(c.regs.DMA()[off:], &c.request) {
		c.stallControl()
		return
	}
	pkg.LogDebug(pkg.ComponentControl, "SETUP", "request", c.request.String())

	c.inControl = true
	prev := c.selected
	c.selected = 0
	handled := c.handler != nil && c.handler.HandleControlRequest(&c.request, (*controlPipe)(c))
	if !handled {
		pkg.LogDebug(pkg.ComponentControl, "request stalled", "request", c.request.String())
		c.stallControl()
	}
	c.selected = prev
	c.inControl = false
}

func (c *Controller) stallControl() {
	c.regs.Store(reg.DIEPCTL(0), c.regs.Load(reg.DIEPCTL(0))&^reg.EPCTL_WO_MASK|reg.EPCTL_STALL)
	c.regs.Store(reg.DOEPCTL(0), c.regs.Load(reg.DOEPCTL(0))&^reg.EPCTL_WO_MASK|reg.EPCTL_STALL)
}

// addressAssigned reports whether the host has assigned a non-zero address.
func (c *Controller) addressAssigned() bool {
	return c.regs.Load(reg.DCFG)&reg.DCFG_DEVADDR_MASK != 0
}

// ep0MPS encodes the control endpoint packet size for DIEPCTL0.
func ep0MPS(size uint16) uint32 {
	switch {
	case size >= 64:
		return reg.EP0_MPS_64
	case size >= 32:
		return reg.EP0_MPS_32
	case size >= 16:
		return reg.EP0_MPS_16
	default:
		return reg.EP0_MPS_8
	}
}

// activateEndpoint programs an endpoint's control register and unmasks its
// interrupt. Non-control endpoints start NAKing with DATA0.
func (c *Controller) activateEndpoint(ep *EndpointState) {
	if ep.IsControl() {
		ctl := c.regs.Load(reg.DIEPCTL(0)) &^ (reg.EPCTL_WO_MASK | reg.EPCTL_MPS_MASK | reg.EPCTL_TXFNUM_MASK)
		c.regs.Store(reg.DIEPCTL(0), ctl|ep0MPS(ep.PacketSize))
		ep.configured = true
		return
	}

	ctl := uint32(ep.PacketSize)&reg.EPCTL_MPS_MASK |
		uint32(ep.Type)<<reg.EPCTL_EPTYPE_SHIFT&reg.EPCTL_EPTYPE_MASK |
		reg.EPCTL_USBACTEP | reg.EPCTL_SETD0PIDEF | reg.EPCTL_SNAK
	if ep.In {
		ctl |= uint32(ep.FIFONumber) << reg.EPCTL_TXFNUM_SHIFT & reg.EPCTL_TXFNUM_MASK
		c.regs.Store(reg.DIEPCTL(ep.Number), ctl)
		c.regs.Store(reg.DAINTMSK, c.regs.Load(reg.DAINTMSK)|1<<ep.Number)
	} else {
		c.regs.Store(reg.DOEPCTL(ep.Number), ctl)
		c.regs.Store(reg.DAINTMSK, c.regs.Load(reg.DAINTMSK)|1<<(reg.DAINT_OUT_SHIFT+ep.Number))
	}
	ep.configured = true
	ep.halted = false
	ep.Lifecycle = LifecycleIdle
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint activated",
		"ep", fmt.Sprintf("0x%02X", ep.Address), "size", ep.PacketSize, "fifo", ep.FIFONumber)
}

// controlPipe is the hal.ControlPipe view of a Controller handed to
// request handlers during bridgeSetup.
type controlPipe Controller

func (p *controlPipe) ctrl() *Controller { return (*Controller)(p) }

// WriteControl sends data as the IN data stage. A short data stage that
// ends on a packet boundary is terminated with a zero-length packet.
func (p *controlPipe) WriteControl(data []byte) error {
	c := p.ctrl()
	if int(c.request.Length) < len(data) {
		data = data[:c.request.Length]
	}
	ep0, _ := c.endpoints.lookup(0)
	mps := int(ep0.PacketSize)

	for sent := 0; ; {
		n := min(len(data)-sent, mps)
		if err := c.transmitEP0(ep0, data[sent:sent+n]); err != nil {
			return err
		}
		sent += n
		if n < mps || sent == len(data) && sent == int(c.request.Length) {
			break
		}
		if sent == len(data) {
			// Data ended on a packet boundary short of wLength.
			return c.transmitEP0(ep0, nil)
		}
	}
	return nil
}

// transmitEP0 sends one packet on endpoint 0 and waits for it to complete.
func (c *Controller) transmitEP0(ep0 *EndpointState, pkt []byte) error {
	copy(c.regs.DMA()[ep0.BufferOffset:], pkt)
	c.regs.Store(reg.DIEPTSIZ(0), 1<<reg.TSIZ_PKTCNT_SHIFT|uint32(len(pkt)))
	c.regs.Store(reg.DIEPDMAADDR(0), c.regs.DMAAddress(ep0.BufferOffset))
	ctl := c.regs.Load(reg.DIEPCTL(0)) &^ reg.EPCTL_WO_MASK
	c.regs.Store(reg.DIEPCTL(0), ctl|reg.EPCTL_CNAK|reg.EPCTL_EPENA)
	if err := c.waitSet("DIEPINT0.XFERCOMPL", reg.DIEPINT(0), reg.EPINT_XFERCOMPL); err != nil {
		return fmt.Errorf("control IN: %w", pkg.ErrTimeout)
	}
	c.regs.Store(reg.DIEPINT(0), reg.EPINT_XFERCOMPL)
	return nil
}

// ReadControl receives the OUT data stage into buf, up to wLength bytes.
// The caller completes the status stage with Acknowledge.
func (p *controlPipe) ReadControl(buf []byte) (int, error) {
	c := p.ctrl()
	want := min(len(buf), int(c.request.Length))
	ep0, _ := c.endpoints.lookup(0)
	mps := int(ep0.PacketSize)

	got := 0
	for got < want {
		size := min(want-got, mps)
		c.regs.Store(reg.DOEPTSIZ(0), 1<<reg.TSIZ_PKTCNT_SHIFT|uint32(size))
		c.regs.Store(reg.DOEPDMAADDR(0), c.regs.DMAAddress(ep0.BufferOffset))
		ctl := c.regs.Load(reg.DOEPCTL(0)) &^ reg.EPCTL_WO_MASK
		c.regs.Store(reg.DOEPCTL(0), ctl|reg.EPCTL_CNAK|reg.EPCTL_EPENA)
		if err := c.waitSet("DOEPINT0.XFERCOMPL", reg.DOEPINT(0), reg.EPINT_XFERCOMPL); err != nil {
			return got, fmt.Errorf("control OUT: %w", pkg.ErrTimeout)
		}
		c.regs.Store(reg.DOEPINT(0), reg.EPINT_XFERCOMPL)

		n := size - int(c.regs.Load(reg.DOEPTSIZ(0))&reg.TSIZ_XFERSIZE_MASK)
		copy(buf[got:], c.regs.DMA()[ep0.BufferOffset:ep0.BufferOffset+n])
		got += n
		if n < size {
			break
		}
	}
	return got, nil
}

// Acknowledge sends the zero-length status packet.
func (p *controlPipe) Acknowledge() error {
	c := p.ctrl()
	ep0, _ := c.endpoints.lookup(0)
	return c.transmitEP0(ep0, nil)
}

// Stall stalls both directions of the control endpoint until the next SETUP.
func (p *controlPipe) Stall() {
	p.ctrl().stallControl()
}

// SetAddress programs the device address before the status stage, as the
// core applies it only after the status stage completes.
func (p *controlPipe) SetAddress(address uint8) error {
	c := p.ctrl()
	if address > 127 {
		return fmt.Errorf("address %d: %w", address, pkg.ErrInvalidParameter)
	}
	if c.state != hal.StateDefault && c.state != hal.StateAddressed {
		return fmt.Errorf("set address in %s: %w", c.state, pkg.ErrInvalidState)
	}
	dcfg := c.regs.Load(reg.DCFG) &^ reg.DCFG_DEVADDR_MASK
	c.regs.Store(reg.DCFG, dcfg|uint32(address)<<reg.DCFG_DEVADDR_SHIFT)
	if err := p.Acknowledge(); err != nil {
		return err
	}
	c.transition(eventAddress, address)
	pkg.LogInfo(pkg.ComponentControl, "address assigned", "address", address)
	return nil
}

// SetConfiguration selects a configuration. Every non-control endpoint is
// deactivated; the configuration callback, which runs after the status
// stage with the device already in its new state, re-activates those the
// configuration uses.
func (p *controlPipe) SetConfiguration(config uint8) error {
	c := p.ctrl()
	if c.state != hal.StateAddressed && c.state != hal.StateConfigured {
		return fmt.Errorf("set configuration in %s: %w", c.state, pkg.ErrInvalidState)
	}
	c.deactivateEndpoints()
	c.configuration = config
	if err := p.Acknowledge(); err != nil {
		return err
	}
	c.transition(eventConfigure, config)
	pkg.LogInfo(pkg.ComponentControl, "configuration selected", "config", config)
	if c.onConfigurationChanged != nil {
		c.onConfigurationChanged(config)
	}
	return nil
}

// Configuration returns the selected configuration.
func (p *controlPipe) Configuration() uint8 { return p.configuration }

// State returns the device state.
func (p *controlPipe) State() hal.State { return p.state }

// RemoteWakeup reports the host's remote wakeup selection.
func (p *controlPipe) RemoteWakeup() bool { return p.remoteWakeup }

// SetRemoteWakeup records the host's remote wakeup selection.
func (p *controlPipe) SetRemoteWakeup(enabled bool) {
	p.remoteWakeup = enabled
	pkg.LogDebug(pkg.ComponentControl, "remote wakeup", "enabled", enabled)
}

func (p *controlPipe) haltable(address uint8) (*EndpointState, error) {
	ep, ok := p.endpoints.lookup(address)
	if !ok || ep.IsControl() || !ep.configured {
		return nil, fmt.Errorf("endpoint 0x%02X: %w", address, pkg.ErrInvalidEndpoint)
	}
	return ep, nil
}

func epctl(ep *EndpointState) uint32 {
	if ep.In {
		return reg.DIEPCTL(ep.Number)
	}
	return reg.DOEPCTL(ep.Number)
}

// HaltEndpoint stalls a non-control endpoint.
func (p *controlPipe) HaltEndpoint(address uint8) error {
	ep, err := p.haltable(address)
	if err != nil {
		return err
	}
	c := p.ctrl()
	off := epctl(ep)
	c.regs.Store(off, c.regs.Load(off)&^reg.EPCTL_WO_MASK|reg.EPCTL_STALL)
	ep.halted = true
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint halted", "ep", fmt.Sprintf("0x%02X", address))
	return nil
}

// ClearHalt clears a stall and resets the data toggle to DATA0.
func (p *controlPipe) ClearHalt(address uint8) error {
	ep, err := p.haltable(address)
	if err != nil {
		return err
	}
	c := p.ctrl()
	off := epctl(ep)
	ctl := c.regs.Load(off) &^ (reg.EPCTL_WO_MASK | reg.EPCTL_STALL)
	c.regs.Store(off, ctl|reg.EPCTL_SETD0PIDEF)
	ep.halted = false
	return nil
}

// EndpointHalted reports the halt feature. The control endpoint is never
// halted.
func (p *controlPipe) EndpointHalted(address uint8) (bool, error) {
	ep, ok := p.endpoints.lookup(address)
	if !ok {
		return false, fmt.Errorf("endpoint 0x%02X: %w", address, pkg.ErrInvalidEndpoint)
	}
	return ep.halted, nil
}

var _ hal.ControlPipe = (*controlPipe)(nil)
