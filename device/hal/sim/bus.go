package sim

import (
	"maps"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
)

// PowerOn raises VBUS: the voltage regulator reports power and, when sense
// is enabled, flags the power-present interrupt.
func (c *Controller) PowerOn() {
	c.regs[reg.STATUS] |= reg.STATUS_VREGOS
	if c.regs[reg.CTRL]&reg.CTRL_VREGOSEN != 0 {
		c.regs[reg.IF] |= reg.IF_VREGOSH
	}
	c.line.service()
}

// PowerOff removes VBUS.
func (c *Controller) PowerOff() {
	c.regs[reg.STATUS] &^= reg.STATUS_VREGOS
	if c.regs[reg.CTRL]&reg.CTRL_VREGOSEN != 0 {
		c.regs[reg.IF] |= reg.IF_VREGOSL
	}
	c.line.service()
}

// Powered reports whether VBUS is present.
func (c *Controller) Powered() bool {
	return c.regs[reg.STATUS]&reg.STATUS_VREGOS != 0
}

// Attached reports whether the device presents itself on the bus: PHY
// routed and soft disconnect released.
func (c *Controller) Attached() bool {
	return c.regs[reg.ROUTE]&reg.ROUTE_PHYPEN != 0 &&
		c.regs[reg.DCTL]&reg.DCTL_SFTDISCON == 0
}

// Raise sets core interrupt status bits as bus activity would and delivers
// the interrupt. With the line disabled the bits stay pending, so several
// events can be serviced by one dispatch.
func (c *Controller) Raise(bits uint32) error {
	if !c.Attached() {
		return ErrDetached
	}
	c.regs[reg.GINTSTS] |= bits
	c.line.service()
	return nil
}

// BusReset drives a USB reset followed by full-speed enumeration.
func (c *Controller) BusReset() error {
	for n := range c.stalled {
		c.stalled[n] = false
		c.queued[n] = nil
	}
	c.regs[reg.DSTS] &^= reg.DSTS_SUSPSTS
	if err := c.Raise(reg.GINT_USBRST); err != nil {
		return err
	}
	c.regs[reg.DSTS] = c.regs[reg.DSTS]&^reg.DSTS_ENUMSPD_MASK | 3<<reg.DSTS_ENUMSPD_SHIFT
	return c.Raise(reg.GINT_ENUMDONE)
}

// Suspend idles the bus.
func (c *Controller) Suspend() error {
	c.regs[reg.DSTS] |= reg.DSTS_SUSPSTS
	return c.Raise(reg.GINT_USBSUSP)
}

// Resume signals resume after Suspend.
func (c *Controller) Resume() error {
	c.regs[reg.DSTS] &^= reg.DSTS_SUSPSTS
	return c.Raise(reg.GINT_WKUPINT)
}

// ResetDetect signals a reset seen while suspended.
func (c *Controller) ResetDetect() error {
	c.regs[reg.DSTS] &^= reg.DSTS_SUSPSTS
	return c.Raise(reg.GINT_RESETDET)
}

// StartOfFrame signals a start-of-frame token with the given frame number.
func (c *Controller) StartOfFrame(frame uint16) error {
	c.regs[reg.DSTS] = c.regs[reg.DSTS]&^reg.DSTS_SOFFN_MASK |
		uint32(frame)<<reg.DSTS_SOFFN_SHIFT&reg.DSTS_SOFFN_MASK
	return c.Raise(reg.GINT_SOF)
}

// Response is the host's view of a control transfer.
type Response struct {
	Data    []byte // IN data stage, packets concatenated
	Packets int    // IN packets sent, including zero-length status
	Stalled bool   // control endpoint stalled
}

// Setup delivers a SETUP packet to endpoint 0 and, for host-to-device
// requests, queues data for the OUT data stage. The device handles the
// request synchronously; its IN packets and stall condition are returned.
func (c *Controller) Setup(req hal.SetupPacket, data []byte) (Response, error) {
	if !c.Attached() {
		return Response{}, ErrDetached
	}
	if c.regs[reg.DOEPCTL(0)]&reg.EPCTL_EPENA == 0 {
		return Response{}, ErrNotArmed
	}

	// A SETUP packet clears a control endpoint stall.
	c.stalled[0] = false
	c.regs[reg.DIEPCTL(0)] &^= reg.EPCTL_STALL
	c.regs[reg.DOEPCTL(0)] &^= reg.EPCTL_STALL
	c.captured[0] = nil
	c.queued[0] = nil
	if len(data) > 0 {
		c.queued[0] = [][]byte{append([]byte(nil), data...)}
	}

	addr := c.regs[reg.DOEPDMAADDR(0)]
	dst, err := c.window(addr, hal.SetupPacketSize)
	if err != nil {
		return Response{}, err
	}
	req.MarshalTo(dst)
	tsiz := c.regs[reg.DOEPTSIZ(0)]
	if supcnt := tsiz & reg.TSIZ_SUPCNT_MASK >> reg.TSIZ_SUPCNT_SHIFT; supcnt > 0 {
		tsiz = tsiz&^reg.TSIZ_SUPCNT_MASK | (supcnt-1)<<reg.TSIZ_SUPCNT_SHIFT
	}
	c.regs[reg.DOEPTSIZ(0)] = tsiz
	c.regs[reg.DOEPDMAADDR(0)] = addr + hal.SetupPacketSize
	c.regs[reg.DOEPCTL(0)] &^= reg.EPCTL_EPENA
	c.regs[reg.DOEPINT(0)] |= reg.EPINT_SETUP
	c.line.service()

	var resp Response
	for _, p := range c.captured[0] {
		resp.Data = append(resp.Data, p...)
		resp.Packets++
	}
	c.captured[0] = nil
	c.queued[0] = nil
	resp.Stalled = c.stalled[0]
	return resp, nil
}

// Out queues a packet for OUT endpoint n. It is delivered as soon as the
// device arms the endpoint.
func (c *Controller) Out(n uint8, data []byte) error {
	if !c.Attached() {
		return ErrDetached
	}
	n &= hal.EndpointNumberMask
	if n >= reg.NumEndpoints {
		return ErrNotArmed
	}
	c.queued[n] = append(c.queued[n], append([]byte(nil), data...))
	if c.regs[reg.DOEPCTL(n)]&reg.EPCTL_EPENA != 0 {
		c.deliver(n)
		c.line.service()
	}
	return nil
}

// Pending returns the number of packets queued for OUT endpoint n that the
// device has not accepted yet.
func (c *Controller) Pending(n uint8) int {
	return len(c.queued[n&hal.EndpointNumberMask])
}

// In drains the packets the device sent on IN endpoint n.
func (c *Controller) In(n uint8) [][]byte {
	n &= hal.EndpointNumberMask
	p := c.captured[n]
	c.captured[n] = nil
	return p
}

// Stalled reports whether the device has stalled endpoint n since the last
// bus reset (or SETUP, for endpoint 0).
func (c *Controller) Stalled(n uint8) bool {
	return c.stalled[n&hal.EndpointNumberMask]
}

// SetupArmed reports whether endpoint 0 is enabled to receive a SETUP
// packet, and how many back-to-back packets it accepts.
func (c *Controller) SetupArmed() (bool, int) {
	enabled := c.regs[reg.DOEPCTL(0)]&reg.EPCTL_EPENA != 0
	supcnt := c.regs[reg.DOEPTSIZ(0)] & reg.TSIZ_SUPCNT_MASK >> reg.TSIZ_SUPCNT_SHIFT
	return enabled, int(supcnt)
}

// SetStuckReset makes GRSTCTL.CSFTRST never self-clear.
func (c *Controller) SetStuckReset(stuck bool) { c.stuckReset = stuck }

// SetStuckAHBIdle makes GRSTCTL.AHBIDLE read as zero.
func (c *Controller) SetStuckAHBIdle(stuck bool) { c.stuckAHBIdle = stuck }

// Writes returns how many times the core stored to a register.
func (c *Controller) Writes(offset uint32) int { return c.writes[offset] }

// SoftResets returns how many core soft resets were requested.
func (c *Controller) SoftResets() int { return c.resets }

// Flushes returns how many FIFO flushes were requested.
func (c *Controller) Flushes() int { return c.flushes }

// Snapshot copies the register file.
func (c *Controller) Snapshot() map[uint32]uint32 {
	return maps.Clone(c.regs)
}
