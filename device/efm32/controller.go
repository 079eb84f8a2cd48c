package efm32

import (
	"fmt"
	"time"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// Driver defaults.
const (
	DefaultOutEndpoints = 2
	DefaultPollLimit    = 100000
	DefaultSettleDelay  = 50 * time.Millisecond
)

// setupBufferSize holds three back-to-back SETUP packets.
const setupBufferSize = 3 * hal.SetupPacketSize

// Config holds driver tunables. The zero value selects the defaults.
type Config struct {
	// OutEndpoints is the number of hardware OUT endpoint contexts
	// provisioned besides endpoint 0. It sizes the receive FIFO status
	// area and bounds the non-control OUT endpoints in the table.
	OutEndpoints int

	// PollLimit bounds every busy-wait on a controller status bit.
	PollLimit int

	// SettleDelay is the pause after forcing device mode.
	SettleDelay time.Duration

	// Sleep implements SettleDelay. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

func (cfg *Config) setDefaults() {
	if cfg.OutEndpoints <= 0 {
		cfg.OutEndpoints = DefaultOutEndpoints
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = DefaultPollLimit
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
}

// Controller drives the EFM32GG USB peripheral in device mode.
//
// Foreground methods may be called from the application loop; they mask
// the controller's interrupt line around every multi-register sequence.
// Callbacks run in interrupt context.
type Controller struct {
	regs hal.Peripheral
	line hal.InterruptLine
	cfg  Config

	initialized bool
	layout      FifoLayout
	endpoints   registry
	setupOffset int

	state         hal.State
	configuration uint8
	remoteWakeup  bool
	speed         hal.Speed
	selected      uint8

	handler   hal.RequestHandler
	request   hal.SetupPacket
	inControl bool

	onConnect              func()
	onDisconnect           func()
	onReset                func()
	onSuspend              func()
	onWakeUp               func()
	onConfigurationChanged func(config uint8)
	onStartOfFrame         func(frame uint16)
	onStateChange          func(old, new hal.State)
}

// New returns a driver for the peripheral behind regs, serviced through
// line. The line's handler is set to HandleInterrupt.
func New(regs hal.Peripheral, line hal.InterruptLine, cfg Config) *Controller {
	cfg.setDefaults()
	c := &Controller{
		regs: regs,
		line: line,
		cfg:  cfg,
	}
	line.SetHandler(c.HandleInterrupt)
	return c
}

// Initialize brings the controller up with the given endpoint table and
// attaches to the bus. An initialized controller is torn down first.
//
// Configuration errors (pkg.ErrFIFOOverflow, pkg.ErrNoResources,
// pkg.ErrNoMemory, pkg.ErrInvalidEndpoint) are reported before any FIFO
// register is written. pkg.ErrHardwareFault means the core never finished
// a reset or flush; the controller is left disabled.
func (c *Controller) Initialize(table []byte) error {
	eps, err := hal.ParseEndpointTable(table)
	if err != nil {
		return fmt.Errorf("endpoint table: %w", err)
	}
	if c.initialized {
		c.Disable()
	}

	g := c.enterCritical()
	defer g.exit()

	c.disableInterrupts()
	c.clearInterrupts()
	c.detach()
	c.disableRouting()
	c.endpoints.reset()
	c.state = hal.StateUnattached
	c.configuration = 0
	c.remoteWakeup = false
	c.speed = hal.SpeedUnknown
	c.selected = 0

	plan, err := planFIFOs(eps, c.cfg.OutEndpoints)
	if err != nil {
		pkg.LogError(pkg.ComponentFIFO, "FIFO allocation failed", "error", err)
		return fmt.Errorf("initialize: %w", err)
	}
	if err := c.populate(eps, plan); err != nil {
		c.endpoints.reset()
		pkg.LogError(pkg.ComponentEndpoint, "endpoint allocation failed", "error", err)
		return fmt.Errorf("initialize: %w", err)
	}

	if gate, ok := c.regs.(hal.ClockGate); ok {
		gate.EnableClock()
	}
	if err := c.resetCore(); err != nil {
		c.shutdown()
		return fmt.Errorf("initialize: %w", err)
	}
	if err := c.programFIFOs(plan.layout); err != nil {
		c.shutdown()
		return fmt.Errorf("initialize: %w", err)
	}
	c.layout = plan.layout
	c.initDevice()
	c.initialized = true

	c.regs.Store(reg.GAHBCFG, c.regs.Load(reg.GAHBCFG)|reg.GAHBCFG_GLBLINTRMSK)
	c.line.ClearPending()
	g.enableOnExit()

	pkg.LogInfo(pkg.ComponentController, "initialized",
		"endpoints", c.endpoints.count, "fifoWords", plan.layout.Total())
	return nil
}

// populate fills the endpoint registry and carves packet buffers out of
// the DMA window after the SETUP area.
func (c *Controller) populate(eps []hal.EndpointConfig, plan fifoPlan) error {
	c.setupOffset = 0
	offset := setupBufferSize
	for i := range eps {
		cfg := &eps[i]
		ep := EndpointState{
			Address:      cfg.Address,
			Number:       cfg.Number(),
			In:           cfg.IsIn(),
			Type:         cfg.TransferType(),
			BufferOffset: offset,
			PacketSize:   cfg.MaxPacketSize,
			FIFONumber:   plan.txNum[i],
			FIFODepth:    plan.depth[i],
			maxPacket:    cfg.MaxPacketSize,
		}
		if _, err := c.endpoints.add(ep); err != nil {
			return err
		}
		offset += (int(cfg.MaxPacketSize) + 3) &^ 3
	}
	if offset > len(c.regs.DMA()) {
		return fmt.Errorf("%d buffer bytes, %d byte DMA window: %w", offset, len(c.regs.DMA()), pkg.ErrNoMemory)
	}
	return nil
}

// initDevice forces device mode at full speed and enables power sensing,
// DMA and endpoint 0, then attaches.
func (c *Controller) initDevice() {
	c.regs.Store(reg.GUSBCFG, c.regs.Load(reg.GUSBCFG)&^reg.GUSBCFG_FORCEHSTMODE|reg.GUSBCFG_FORCEDEVMODE)
	c.cfg.Sleep(c.cfg.SettleDelay)

	dcfg := c.regs.Load(reg.DCFG) &^ (reg.DCFG_DEVSPD_MASK | reg.DCFG_PERFRINT_MASK)
	c.regs.Store(reg.DCFG, dcfg|reg.DCFG_DEVSPD_FS|reg.DCFG_NZSTSOUTHSHK)

	ahb := c.regs.Load(reg.GAHBCFG) &^ reg.GAHBCFG_HBSTLEN_MASK
	c.regs.Store(reg.GAHBCFG, ahb|reg.GAHBCFG_DMAEN|reg.GAHBCFG_HBSTLEN_INCR)

	c.regs.Store(reg.CTRL, c.regs.Load(reg.CTRL)|reg.CTRL_VREGOSEN)
	c.regs.Store(reg.IFC, reg.IF_VREGOSH|reg.IF_VREGOSL)
	c.regs.Store(reg.IEN, c.regs.Load(reg.IEN)|reg.IF_VREGOSH|reg.IF_VREGOSL)
	// Raise the regulator interrupt matching the current supply so the
	// first dispatch settles Powered or Unattached.
	if c.regs.Load(reg.STATUS)&reg.STATUS_VREGOS != 0 {
		c.regs.Store(reg.IFS, reg.IF_VREGOSH)
	} else {
		c.regs.Store(reg.IFS, reg.IF_VREGOSL)
	}

	ep0, _ := c.endpoints.lookup(0)
	c.activateEndpoint(ep0)

	c.regs.Store(reg.GINTMSK, c.regs.Load(reg.GINTMSK)|reg.GINT_USBSUSP|reg.GINT_SOF)
	c.attach()
}

// Disable masks and clears every interrupt, detaches, removes PHY routing
// and gates the controller clocks. In-flight transfers are dropped without
// completion callbacks. Calling Disable again has no further effect.
func (c *Controller) Disable() {
	g := c.enterCritical()
	defer g.exit()
	g.disableOnExit()

	c.shutdown()
	if c.initialized {
		pkg.LogInfo(pkg.ComponentController, "disabled")
	}
	c.initialized = false
	c.inControl = false
	c.configuration = 0
	c.endpoints.abort()
	c.setState(hal.StateUnattached)
}

func (c *Controller) shutdown() {
	c.disableInterrupts()
	c.clearInterrupts()
	c.regs.Store(reg.IEN, 0)
	c.regs.Store(reg.IFC, reg.IF_VREGOSH|reg.IF_VREGOSL)
	c.regs.Store(reg.CTRL, c.regs.Load(reg.CTRL)&^reg.CTRL_VREGOSEN)
	c.regs.Store(reg.GAHBCFG, c.regs.Load(reg.GAHBCFG)&^reg.GAHBCFG_GLBLINTRMSK)
	c.detach()
	c.disableRouting()
	if gate, ok := c.regs.(hal.ClockGate); ok {
		gate.DisableClock()
	}
}

// ResetInterface masks and clears interrupts, re-enables PHY routing and
// soft-resets the core. FIFO partitioning and the endpoint registry are
// left as they are.
func (c *Controller) ResetInterface() error {
	g := c.enterCritical()
	defer g.exit()

	if !c.initialized {
		return fmt.Errorf("reset interface: %w", pkg.ErrNotInitialized)
	}
	c.disableInterrupts()
	c.clearInterrupts()
	if err := c.resetCore(); err != nil {
		return fmt.Errorf("reset interface: %w", err)
	}
	return nil
}

// resetCore enables PHY routing and performs a core soft reset.
func (c *Controller) resetCore() error {
	c.regs.Store(reg.ROUTE, reg.ROUTE_PHYPEN|reg.ROUTE_VBUSENPEN)
	c.regs.Store(reg.PCGCCTL, c.regs.Load(reg.PCGCCTL)&^
		(reg.PCGCCTL_STOPPCLK|reg.PCGCCTL_PWRCLMP|reg.PCGCCTL_RSTPDWNMODULE))

	if err := c.waitSet("GRSTCTL.AHBIDLE", reg.GRSTCTL, reg.GRSTCTL_AHBIDLE); err != nil {
		return err
	}
	c.regs.Store(reg.GRSTCTL, c.regs.Load(reg.GRSTCTL)|reg.GRSTCTL_CSFTRST)
	return c.waitClear("GRSTCTL.CSFTRST", reg.GRSTCTL, reg.GRSTCTL_CSFTRST)
}

func (c *Controller) waitSet(name string, offset, mask uint32) error {
	for i := 0; i < c.cfg.PollLimit; i++ {
		if c.regs.Load(offset)&mask != 0 {
			return nil
		}
	}
	pkg.LogError(pkg.ComponentController, "register never set", "bit", name, "polls", c.cfg.PollLimit)
	return fmt.Errorf("%s never set: %w", name, pkg.ErrHardwareFault)
}

func (c *Controller) waitClear(name string, offset, mask uint32) error {
	for i := 0; i < c.cfg.PollLimit; i++ {
		if c.regs.Load(offset)&mask == 0 {
			return nil
		}
	}
	pkg.LogError(pkg.ComponentController, "register never cleared", "bit", name, "polls", c.cfg.PollLimit)
	return fmt.Errorf("%s never cleared: %w", name, pkg.ErrHardwareFault)
}

func (c *Controller) attach() {
	c.regs.Store(reg.DCTL, c.regs.Load(reg.DCTL)&^reg.DCTL_SFTDISCON)
}

func (c *Controller) detach() {
	c.regs.Store(reg.DCTL, c.regs.Load(reg.DCTL)|reg.DCTL_SFTDISCON)
}

func (c *Controller) disableRouting() {
	c.regs.Store(reg.ROUTE, c.regs.Load(reg.ROUTE)&^(reg.ROUTE_PHYPEN|reg.ROUTE_VBUSENPEN))
}

// Initialized reports whether Initialize succeeded and Disable has not
// been called since.
func (c *Controller) Initialized() bool {
	return c.initialized
}

// Layout returns the programmed FIFO partitioning.
func (c *Controller) Layout() FifoLayout {
	return c.layout
}

// Speed returns the negotiated bus speed.
func (c *Controller) Speed() hal.Speed {
	g := c.enterCritical()
	defer g.exit()
	return c.speed
}

// Configuration returns the selected configuration, 0 when unconfigured.
func (c *Controller) Configuration() uint8 {
	g := c.enterCritical()
	defer g.exit()
	return c.configuration
}

// RemoteWakeupEnabled reports whether the host enabled remote wakeup.
func (c *Controller) RemoteWakeupEnabled() bool {
	g := c.enterCritical()
	defer g.exit()
	return c.remoteWakeup
}

// SetRequestHandler installs the processor invoked for every SETUP packet.
func (c *Controller) SetRequestHandler(h hal.RequestHandler) {
	g := c.enterCritical()
	defer g.exit()
	c.handler = h
}

// SetOnConnect sets the callback run when bus power appears.
func (c *Controller) SetOnConnect(cb func()) { c.onConnect = cb }

// SetOnDisconnect sets the callback run when bus power is lost.
func (c *Controller) SetOnDisconnect(cb func()) { c.onDisconnect = cb }

// SetOnReset sets the callback run after a bus reset.
func (c *Controller) SetOnReset(cb func()) { c.onReset = cb }

// SetOnSuspend sets the callback run when the bus suspends.
func (c *Controller) SetOnSuspend(cb func()) { c.onSuspend = cb }

// SetOnWakeUp sets the callback run when the bus resumes.
func (c *Controller) SetOnWakeUp(cb func()) { c.onWakeUp = cb }

// SetOnConfigurationChanged sets the callback run after SET_CONFIGURATION.
// It must configure the non-control endpoints and prime OUT endpoints.
func (c *Controller) SetOnConfigurationChanged(cb func(config uint8)) {
	c.onConfigurationChanged = cb
}

// SetOnStartOfFrame sets the callback run on every start-of-frame.
func (c *Controller) SetOnStartOfFrame(cb func(frame uint16)) { c.onStartOfFrame = cb }

// SetOnStateChange sets the callback run on every device state change.
func (c *Controller) SetOnStateChange(cb func(old, new hal.State)) { c.onStateChange = cb }
