package efm32

import (
	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// allInterrupts clears every write-1-to-clear status bit.
const allInterrupts = 0xFFFFFFFF

// deviceInterrupts is the core interrupt set enabled once the bus is up.
const deviceInterrupts = reg.GINT_USBSUSP | reg.GINT_USBRST | reg.GINT_ENUMDONE |
	reg.GINT_IEPINT | reg.GINT_OEPINT | reg.GINT_WKUPINT | reg.GINT_RESETDET | reg.GINT_SOF

// interruptHandler services one core interrupt status bit.
type interruptHandler struct {
	mask   uint32
	handle func(*Controller)
}

// dispatchOrder is the fixed priority in which pending core interrupts are
// serviced. Bus reset follows wakeup and suspend so it overrides them, and
// endpoint traffic is handled once the device state has settled.
var dispatchOrder = [...]interruptHandler{
	{reg.GINT_RESETDET, (*Controller).handleResetDetect},
	{reg.GINT_WKUPINT, (*Controller).handleWakeup},
	{reg.GINT_USBSUSP, (*Controller).handleSuspend},
	{reg.GINT_SOF, (*Controller).handleStartOfFrame},
	{reg.GINT_ENUMDONE, (*Controller).handleEnumDone},
	{reg.GINT_USBRST, (*Controller).handleBusReset},
	{reg.GINT_IEPINT, (*Controller).handleInEndpoints},
	{reg.GINT_OEPINT, (*Controller).handleOutEndpoints},
}

// HandleInterrupt is the controller's interrupt service routine.
func (c *Controller) HandleInterrupt() {
	g := c.enterCritical()
	defer g.exit()

	if !c.initialized {
		return
	}

	if c.regs.Load(reg.IF) != 0 && c.regs.Load(reg.CTRL)&reg.CTRL_VREGOSEN != 0 {
		c.handlePower()
	}

	status := c.regs.Load(reg.GINTSTS) & c.regs.Load(reg.GINTMSK)
	if status == 0 {
		c.armSetup()
		return
	}
	pkg.LogDebug(pkg.ComponentInterrupt, "dispatch", "status", status)

	for _, h := range dispatchOrder {
		if status&h.mask != 0 {
			h.handle(c)
			status &^= h.mask
		}
	}
	c.armSetup()
}

// handlePower services the voltage regulator sense interrupts.
func (c *Controller) handlePower() {
	flags := c.regs.Load(reg.IF)
	if flags&reg.IF_VREGOSH != 0 {
		c.regs.Store(reg.IFC, reg.IF_VREGOSH)
		if c.regs.Load(reg.STATUS)&reg.STATUS_VREGOS != 0 && c.transition(eventPowerPresent, 0) {
			// Bus events already pending are serviced by this dispatch.
			c.regs.Store(reg.GINTMSK, reg.GINT_USBRST|reg.GINT_USBSUSP)
			pkg.LogInfo(pkg.ComponentInterrupt, "bus power present")
			if c.onConnect != nil {
				c.onConnect()
			}
		}
	}
	if flags&reg.IF_VREGOSL != 0 {
		c.regs.Store(reg.IFC, reg.IF_VREGOSL)
		if c.regs.Load(reg.STATUS)&reg.STATUS_VREGOS == 0 {
			c.regs.Store(reg.GINTMSK, 0)
			c.regs.Store(reg.GINTSTS, allInterrupts)
			wasAttached := c.state != hal.StateUnattached
			c.configuration = 0
			c.endpoints.abort()
			c.transition(eventPowerAbsent, 0)
			if wasAttached {
				pkg.LogInfo(pkg.ComponentInterrupt, "bus power lost")
				if c.onDisconnect != nil {
					c.onDisconnect()
				}
			}
		}
	}
}

func (c *Controller) handleResetDetect() {
	c.regs.Store(reg.GINTSTS, reg.GINT_RESETDET)
	c.transition(eventResetDetect, 0)
}

func (c *Controller) handleWakeup() {
	c.regs.Store(reg.GINTSTS, reg.GINT_WKUPINT)
	c.transition(eventWakeup, 0)
	if c.onWakeUp != nil {
		c.onWakeUp()
	}
}

func (c *Controller) handleSuspend() {
	c.regs.Store(reg.GINTSTS, reg.GINT_USBSUSP)
	c.transition(eventSuspend, 0)
	if c.onSuspend != nil {
		c.onSuspend()
	}
}

func (c *Controller) handleStartOfFrame() {
	c.regs.Store(reg.GINTSTS, reg.GINT_SOF)
	if c.onStartOfFrame != nil {
		frame := (c.regs.Load(reg.DSTS) & reg.DSTS_SOFFN_MASK) >> reg.DSTS_SOFFN_SHIFT
		c.onStartOfFrame(uint16(frame))
	}
}

// handleEnumDone runs once speed negotiation finishes after a reset.
func (c *Controller) handleEnumDone() {
	c.regs.Store(reg.GINTSTS, reg.GINT_ENUMDONE)
	if ep0, ok := c.endpoints.lookup(0); ok {
		ep0.Lifecycle = LifecycleIdle
	}
	switch (c.regs.Load(reg.DSTS) & reg.DSTS_ENUMSPD_MASK) >> reg.DSTS_ENUMSPD_SHIFT {
	case 2:
		c.speed = hal.SpeedLow
	default:
		c.speed = hal.SpeedFull
	}
	c.enableDeviceInterrupts()
	pkg.LogDebug(pkg.ComponentInterrupt, "enumeration done", "speed", c.speed.String())
}

// handleBusReset returns the device to the Default state: address cleared,
// transmit FIFO 0 flushed, endpoint interrupts reset and endpoint 0 armed
// for SETUP.
func (c *Controller) handleBusReset() {
	c.regs.Store(reg.DCTL, c.regs.Load(reg.DCTL)&^reg.DCTL_RMTWKUPSIG)
	if err := c.flushTx(0); err != nil {
		pkg.LogError(pkg.ComponentInterrupt, "bus reset flush failed", "error", err)
	}
	for n := uint8(0); n < reg.NumEndpoints; n++ {
		c.regs.Store(reg.DIEPINT(n), allInterrupts)
		c.regs.Store(reg.DOEPINT(n), allInterrupts)
	}
	c.regs.Store(reg.DAINTMSK, 1|1<<reg.DAINT_OUT_SHIFT)
	c.regs.Store(reg.DOEPMSK, reg.EPINT_SETUP|reg.EPINT_XFERCOMPL)
	c.regs.Store(reg.DIEPMSK, reg.EPINT_XFERCOMPL)
	c.regs.Store(reg.DCFG, c.regs.Load(reg.DCFG)&^reg.DCFG_DEVADDR_MASK)

	c.configuration = 0
	c.remoteWakeup = false
	c.endpoints.abort()
	c.armSetup()
	c.enableDeviceInterrupts()

	if c.onReset != nil {
		c.onReset()
	}
	c.transition(eventBusReset, 0)
	pkg.LogDebug(pkg.ComponentInterrupt, "bus reset")
}

// disableInterrupts masks every core and endpoint interrupt source.
func (c *Controller) disableInterrupts() {
	c.regs.Store(reg.DIEPMSK, 0)
	c.regs.Store(reg.DOEPMSK, 0)
	c.regs.Store(reg.DAINTMSK, 0)
	c.regs.Store(reg.DIEPEMPMSK, 0)
	c.regs.Store(reg.GINTMSK, 0)
}

// clearInterrupts clears every pending core and endpoint interrupt.
func (c *Controller) clearInterrupts() {
	for n := uint8(0); n < reg.NumEndpoints; n++ {
		c.regs.Store(reg.DIEPINT(n), allInterrupts)
		c.regs.Store(reg.DOEPINT(n), allInterrupts)
	}
	c.regs.Store(reg.GINTSTS, allInterrupts)
}

func (c *Controller) enableDeviceInterrupts() {
	c.regs.Store(reg.GINTSTS, allInterrupts)
	c.regs.Store(reg.GINTMSK, deviceInterrupts)
}

// handleInEndpoints completes IN transfers.
func (c *Controller) handleInEndpoints() {
	pending := c.regs.Load(reg.DAINT) & c.regs.Load(reg.DAINTMSK) & reg.DAINT_IN_MASK
	for n := uint8(0); n < reg.NumEndpoints; n++ {
		if pending&(1<<n) == 0 {
			continue
		}
		flags := c.regs.Load(reg.DIEPINT(n)) & c.regs.Load(reg.DIEPMSK)
		c.regs.Store(reg.DIEPINT(n), flags)
		ep := c.endpoints.in(n)
		if ep == nil || flags&reg.EPINT_XFERCOMPL == 0 {
			continue
		}
		remaining := int(c.regs.Load(reg.DIEPTSIZ(n)) & reg.TSIZ_XFERSIZE_MASK)
		c.complete(ep, remaining)
	}
}

// handleOutEndpoints completes OUT transfers and runs the control-transfer
// bridge when endpoint 0 finishes a SETUP phase.
func (c *Controller) handleOutEndpoints() {
	pending := (c.regs.Load(reg.DAINT) & c.regs.Load(reg.DAINTMSK)) >> reg.DAINT_OUT_SHIFT
	for n := uint8(0); n < reg.NumEndpoints; n++ {
		if pending&(1<<n) == 0 {
			continue
		}
		flags := c.regs.Load(reg.DOEPINT(n)) & c.regs.Load(reg.DOEPMSK)
		c.regs.Store(reg.DOEPINT(n), flags)
		if n == 0 {
			if flags&reg.EPINT_SETUP != 0 {
				c.bridgeSetup()
			}
			continue
		}
		ep := c.endpoints.out(n)
		if ep == nil || flags&reg.EPINT_XFERCOMPL == 0 {
			continue
		}
		remaining := int(c.regs.Load(reg.DOEPTSIZ(n)) & reg.TSIZ_XFERSIZE_MASK)
		ep.received = true
		c.complete(ep, remaining)
	}
}

// complete records transfer progress, idles the endpoint, and invokes then
// clears its completion callback.
func (c *Controller) complete(ep *EndpointState, remaining int) {
	ep.BytesRemaining = remaining
	ep.BytesTransferred = max(ep.requested-remaining, 0)
	ep.Lifecycle = LifecycleIdle
	cb := ep.complete
	ep.complete = nil
	pkg.LogDebug(pkg.ComponentEndpoint, "transfer complete",
		"ep", ep.Address, "bytes", ep.BytesTransferred)
	if cb != nil {
		cb(pkg.TransferStatusSuccess, ep.BytesTransferred)
	}
}
