package sim

import (
	"errors"
	"fmt"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// DefaultDMASize is the size of the simulated DMA window in bytes.
const DefaultDMASize = 2048

// dmaBase is the bus address of the first DMA window byte.
const dmaBase = 0x20000000

// maxDeliveries bounds how often one stimulus may re-run the handler while
// the interrupt stays asserted.
const maxDeliveries = 32

// Host-side errors.
var (
	// ErrDetached is returned when the host drives a bus the device is not
	// attached to.
	ErrDetached = errors.New("device not attached")

	// ErrNotArmed is returned when the device has not enabled the endpoint
	// the host addresses.
	ErrNotArmed = errors.New("endpoint not armed")
)

// Controller simulates the EFM32GG USB register block, its DMA window and
// its NVIC line. It models one core: interrupt delivery is synchronous on
// the goroutine that changed a register or applied a stimulus, so the
// driver and the simulated host must share a goroutine.
type Controller struct {
	regs   map[uint32]uint32
	writes map[uint32]int
	dma    []byte
	line   Line

	captured [reg.NumEndpoints][][]byte
	queued   [reg.NumEndpoints][][]byte
	stalled  [reg.NumEndpoints]bool

	clockOn      bool
	stuckReset   bool
	stuckAHBIdle bool
	resets       int
	flushes      int
}

// New returns a powered-down controller with a DMA window of dmaSize bytes
// (DefaultDMASize if dmaSize <= 0).
func New(dmaSize int) *Controller {
	if dmaSize <= 0 {
		dmaSize = DefaultDMASize
	}
	c := &Controller{
		regs:   make(map[uint32]uint32),
		writes: make(map[uint32]int),
		dma:    make([]byte, dmaSize),
	}
	c.line.c = c
	c.regs[reg.DCTL] = reg.DCTL_SFTDISCON
	return c
}

// Line returns the controller's interrupt line.
func (c *Controller) Line() *Line { return &c.line }

// DMA returns the simulated DMA window.
func (c *Controller) DMA() []byte { return c.dma }

// DMAAddress converts a window offset to a bus address.
func (c *Controller) DMAAddress(offset int) uint32 { return dmaBase + uint32(offset) }

func (c *Controller) window(addr uint32, n int) ([]byte, error) {
	off := int(addr) - dmaBase
	if off < 0 || off+n > len(c.dma) {
		return nil, fmt.Errorf("DMA address 0x%08X+%d outside window: %w", addr, n, pkg.ErrNoMemory)
	}
	return c.dma[off : off+n], nil
}

// EnableClock implements hal.ClockGate.
func (c *Controller) EnableClock() { c.clockOn = true }

// DisableClock implements hal.ClockGate.
func (c *Controller) DisableClock() { c.clockOn = false }

// ClockEnabled reports whether the driver enabled the peripheral clocks.
func (c *Controller) ClockEnabled() bool { return c.clockOn }

// Load reads a register.
func (c *Controller) Load(offset uint32) uint32 {
	switch {
	case offset == reg.GRSTCTL:
		v := c.regs[offset]
		if !c.stuckAHBIdle {
			v |= reg.GRSTCTL_AHBIDLE
		}
		return v
	case offset == reg.DAINT:
		return c.daint()
	case offset == reg.GINTSTS:
		return c.gintsts()
	}
	return c.regs[offset]
}

// Store writes a register, applies its hardware side effects and delivers
// the interrupt if it is asserted.
func (c *Controller) Store(offset uint32, value uint32) {
	c.writes[offset]++
	c.store(offset, value)
	c.line.service()
}

func (c *Controller) store(offset uint32, value uint32) {
	switch offset {
	case reg.IFS:
		c.regs[reg.IF] |= value
	case reg.IFC:
		c.regs[reg.IF] &^= value
	case reg.IF, reg.STATUS, reg.DAINT, reg.DSTS:
		// read-only from the core's side
	case reg.GINTSTS:
		c.regs[reg.GINTSTS] &^= value &^ (reg.GINT_IEPINT | reg.GINT_OEPINT)
	case reg.GRSTCTL:
		c.storeReset(value)
	default:
		if n, in, field, ok := endpointRegister(offset); ok {
			c.storeEndpoint(n, in, field, offset, value)
			return
		}
		c.regs[offset] = value
	}
}

func (c *Controller) storeReset(value uint32) {
	v := value &^ reg.GRSTCTL_AHBIDLE
	if v&reg.GRSTCTL_CSFTRST != 0 {
		c.resets++
		if !c.stuckReset {
			v &^= reg.GRSTCTL_CSFTRST
		}
	}
	if v&(reg.GRSTCTL_TXFFLSH|reg.GRSTCTL_RXFFLSH) != 0 {
		c.flushes++
		v &^= reg.GRSTCTL_TXFFLSH | reg.GRSTCTL_RXFFLSH
	}
	c.regs[reg.GRSTCTL] = v
}

func endpointRegister(offset uint32) (n uint8, in bool, field uint32, ok bool) {
	switch {
	case offset >= reg.DIEP0 && offset < reg.DIEP0+reg.NumEndpoints*reg.EPStride:
		rel := offset - reg.DIEP0
		return uint8(rel / reg.EPStride), true, rel % reg.EPStride, true
	case offset >= reg.DOEP0 && offset < reg.DOEP0+reg.NumEndpoints*reg.EPStride:
		rel := offset - reg.DOEP0
		return uint8(rel / reg.EPStride), false, rel % reg.EPStride, true
	}
	return 0, false, 0, false
}

func (c *Controller) storeEndpoint(n uint8, in bool, field, offset, value uint32) {
	switch field {
	case reg.EPINT:
		c.regs[offset] &^= value
		return
	case reg.EPCTL:
	default:
		c.regs[offset] = value
		return
	}

	if value&reg.EPCTL_STALL != 0 {
		c.stalled[n] = true
	}
	v := value &^ (reg.EPCTL_CNAK | reg.EPCTL_SNAK | reg.EPCTL_SETD0PIDEF | 1<<29)
	if value&reg.EPCTL_SNAK != 0 {
		v |= reg.EPCTL_NAKSTS
	}
	if value&reg.EPCTL_CNAK != 0 {
		v &^= reg.EPCTL_NAKSTS
	}
	if v&reg.EPCTL_EPDIS != 0 {
		v &^= reg.EPCTL_EPDIS | reg.EPCTL_EPENA
		c.raiseEndpoint(n, in, reg.EPINT_EPDISBLD)
	}
	c.regs[offset] = v

	if v&reg.EPCTL_EPENA == 0 {
		return
	}
	if in {
		c.transmit(n)
	} else {
		c.deliver(n)
	}
}

func (c *Controller) raiseEndpoint(n uint8, in bool, flags uint32) {
	if in {
		c.regs[reg.DIEPINT(n)] |= flags
	} else {
		c.regs[reg.DOEPINT(n)] |= flags
	}
}

// transmit moves an enabled IN transfer from the DMA window to the host.
func (c *Controller) transmit(n uint8) {
	tsiz := c.regs[reg.DIEPTSIZ(n)]
	size := int(tsiz & reg.TSIZ_XFERSIZE_MASK)
	data, err := c.window(c.regs[reg.DIEPDMAADDR(n)], size)
	if err != nil {
		pkg.LogError(pkg.ComponentSim, "IN transfer dropped", "ep", n, "error", err)
		c.regs[reg.DIEPCTL(n)] &^= reg.EPCTL_EPENA
		c.raiseEndpoint(n, true, reg.EPINT_AHBERR)
		return
	}
	c.captured[n] = append(c.captured[n], append([]byte(nil), data...))
	c.regs[reg.DIEPTSIZ(n)] = tsiz &^ (reg.TSIZ_XFERSIZE_MASK | reg.TSIZ_PKTCNT_MASK)
	c.regs[reg.DIEPCTL(n)] &^= reg.EPCTL_EPENA
	c.raiseEndpoint(n, true, reg.EPINT_XFERCOMPL)
	pkg.LogDebug(pkg.ComponentSim, "IN", "ep", n, "len", size)
}

// deliver hands queued host data to an enabled OUT endpoint. Endpoints
// armed only for SETUP packets (transfer size zero) receive nothing.
func (c *Controller) deliver(n uint8) {
	tsiz := c.regs[reg.DOEPTSIZ(n)]
	size := int(tsiz & reg.TSIZ_XFERSIZE_MASK)
	if size == 0 || len(c.queued[n]) == 0 {
		return
	}
	pkt := c.queued[n][0]
	k := min(len(pkt), size)
	dst, err := c.window(c.regs[reg.DOEPDMAADDR(n)], k)
	if err != nil {
		pkg.LogError(pkg.ComponentSim, "OUT transfer dropped", "ep", n, "error", err)
		c.regs[reg.DOEPCTL(n)] &^= reg.EPCTL_EPENA
		c.raiseEndpoint(n, false, reg.EPINT_AHBERR)
		return
	}
	copy(dst, pkt[:k])
	if k < len(pkt) {
		c.queued[n][0] = pkt[k:]
	} else {
		c.queued[n] = c.queued[n][1:]
	}
	remaining := uint32(size - k)
	c.regs[reg.DOEPTSIZ(n)] = tsiz&^(reg.TSIZ_XFERSIZE_MASK|reg.TSIZ_PKTCNT_MASK) | remaining
	c.regs[reg.DOEPCTL(n)] &^= reg.EPCTL_EPENA
	c.raiseEndpoint(n, false, reg.EPINT_XFERCOMPL)
	pkg.LogDebug(pkg.ComponentSim, "OUT", "ep", n, "len", k)
}

func (c *Controller) daint() uint32 {
	var v uint32
	for n := uint8(0); n < reg.NumEndpoints; n++ {
		if c.regs[reg.DIEPINT(n)]&c.regs[reg.DIEPMSK] != 0 {
			v |= 1 << n
		}
		if c.regs[reg.DOEPINT(n)]&c.regs[reg.DOEPMSK] != 0 {
			v |= 1 << (reg.DAINT_OUT_SHIFT + n)
		}
	}
	return v
}

func (c *Controller) gintsts() uint32 {
	v := c.regs[reg.GINTSTS]
	pending := c.daint() & c.regs[reg.DAINTMSK]
	if pending&reg.DAINT_IN_MASK != 0 {
		v |= reg.GINT_IEPINT
	}
	if pending>>reg.DAINT_OUT_SHIFT != 0 {
		v |= reg.GINT_OEPINT
	}
	return v
}

// asserted reports whether the peripheral drives its interrupt request.
func (c *Controller) asserted() bool {
	if c.regs[reg.IF]&c.regs[reg.IEN] != 0 {
		return true
	}
	return c.regs[reg.GAHBCFG]&reg.GAHBCFG_GLBLINTRMSK != 0 &&
		c.gintsts()&c.regs[reg.GINTMSK] != 0
}

// Line simulates one NVIC interrupt line. The handler runs when the line
// is enabled, the peripheral asserts its request and no handler is already
// running.
type Line struct {
	c       *Controller
	handler func()
	enabled bool
	active  bool
}

// SetHandler implements hal.InterruptLine.
func (l *Line) SetHandler(handler func()) { l.handler = handler }

// Enable implements hal.InterruptLine.
func (l *Line) Enable() {
	l.enabled = true
	l.service()
}

// Disable implements hal.InterruptLine.
func (l *Line) Disable() bool {
	was := l.enabled
	l.enabled = false
	return was
}

// ClearPending implements hal.InterruptLine. Requests are level-triggered,
// so there is no latch to clear.
func (l *Line) ClearPending() {}

// Enabled reports whether the line is unmasked.
func (l *Line) Enabled() bool { return l.enabled }

func (l *Line) service() {
	for i := 0; l.enabled && !l.active && l.handler != nil && l.c.asserted(); i++ {
		if i == maxDeliveries {
			pkg.LogWarn(pkg.ComponentSim, "interrupt stuck asserted",
				"GINTSTS", fmt.Sprintf("0x%08X", l.c.gintsts()),
				"IF", fmt.Sprintf("0x%08X", l.c.regs[reg.IF]))
			return
		}
		l.active = true
		l.handler()
		l.active = false
	}
}

var (
	_ hal.Peripheral    = (*Controller)(nil)
	_ hal.ClockGate     = (*Controller)(nil)
	_ hal.InterruptLine = (*Line)(nil)
)
