package efm32

import (
	"fmt"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// Receive FIFO overhead in words: SETUP packet storage for one control
// endpoint (4n+6), one GOTNAK entry, and two status words per OUT context.
const (
	rxSetupWords  = 10
	rxGlobalNAK   = 1
	rxStatusWords = 2
)

// TxFifo is one transmit FIFO partition.
type TxFifo struct {
	Number  uint8  `json:"number" yaml:"number" toml:"number"`
	Address uint8  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Start   uint16 `json:"start" yaml:"start" toml:"start"`
	Depth   uint16 `json:"depth" yaml:"depth" toml:"depth"`
}

// FifoLayout is the partitioning of the controller's FIFO RAM, in 32-bit
// words. Tx is ordered by FIFO number; Tx[0] serves the control endpoint.
type FifoLayout struct {
	RxDepth uint16   `json:"rxDepth" yaml:"rxDepth" toml:"rxDepth"`
	Tx      []TxFifo `json:"tx" yaml:"tx" toml:"tx"`
}

// TotalTx returns the words allocated to transmit FIFOs.
func (l FifoLayout) TotalTx() int {
	total := 0
	for _, tx := range l.Tx {
		total += int(tx.Depth)
	}
	return total
}

// Total returns the words allocated to all FIFOs.
func (l FifoLayout) Total() int {
	return int(l.RxDepth) + l.TotalTx()
}

// fifoPlan is the allocation result per endpoint, in table order.
type fifoPlan struct {
	layout FifoLayout
	depth  []uint16
	txNum  []uint8
}

// fifoWords returns the FIFO requirement of one endpoint. A packet size
// that is not a whole number of words rounds up. Bulk endpoints reserve
// room for two packets.
func fifoWords(ep *hal.EndpointConfig) uint16 {
	words := (ep.MaxPacketSize + 3) / 4
	mult := uint16(1)
	if ep.TransferType() == hal.TransferTypeBulk {
		mult = 2
	}
	switch {
	case ep.TransferType() == hal.TransferTypeControl:
		return words
	case ep.IsIn():
		return words * mult
	default:
		return (words + 1) * mult
	}
}

// PlanFIFOs computes the FIFO partitioning for an endpoint table.
// outEndpoints is the number of hardware OUT contexts provisioned besides
// endpoint 0. The plan is rejected with pkg.ErrFIFOOverflow when it does
// not fit the controller's FIFO RAM.
func PlanFIFOs(eps []hal.EndpointConfig, outEndpoints int) (FifoLayout, error) {
	plan, err := planFIFOs(eps, outEndpoints)
	return plan.layout, err
}

func planFIFOs(eps []hal.EndpointConfig, outEndpoints int) (fifoPlan, error) {
	plan := fifoPlan{
		depth: make([]uint16, len(eps)),
		txNum: make([]uint8, len(eps)),
	}
	if len(eps) == 0 || eps[0].Address != 0 || eps[0].TransferType() != hal.TransferTypeControl {
		return plan, fmt.Errorf("first entry must be control endpoint 0: %w", pkg.ErrInvalidEndpoint)
	}

	rx := 0
	outs := 0
	tx := []TxFifo{{Number: 0, Address: 0}}
	for i := range eps {
		ep := &eps[i]
		switch {
		case i > 0 && ep.TransferType() == hal.TransferTypeControl:
			return plan, fmt.Errorf("endpoint 0x%02X: only one control endpoint: %w", ep.Address, pkg.ErrInvalidEndpoint)
		case ep.TransferType() == hal.TransferTypeIsochronous:
			return plan, fmt.Errorf("endpoint 0x%02X: isochronous unsupported: %w", ep.Address, pkg.ErrInvalidEndpoint)
		case ep.Number() >= reg.NumEndpoints:
			return plan, fmt.Errorf("endpoint 0x%02X: number exceeds %d: %w", ep.Address, reg.NumEndpoints-1, pkg.ErrNoResources)
		}

		words := fifoWords(ep)
		plan.depth[i] = words
		switch {
		case i == 0:
			rx += int(words)
			tx[0].Depth = words
		case ep.IsIn():
			if len(tx) > reg.NumTxFIFOs {
				return plan, fmt.Errorf("endpoint 0x%02X: %d transmit FIFOs: %w", ep.Address, reg.NumTxFIFOs, pkg.ErrNoResources)
			}
			plan.txNum[i] = uint8(len(tx))
			tx = append(tx, TxFifo{Number: uint8(len(tx)), Address: ep.Address, Depth: words})
		default:
			outs++
			if outs > outEndpoints {
				return plan, fmt.Errorf("endpoint 0x%02X: %d OUT contexts: %w", ep.Address, outEndpoints, pkg.ErrNoResources)
			}
			rx += int(words)
		}
	}
	rx += rxSetupWords + rxGlobalNAK + rxStatusWords*(outEndpoints+1)

	start := rx
	for i := range tx {
		tx[i].Start = uint16(start)
		start += int(tx[i].Depth)
	}
	plan.layout = FifoLayout{RxDepth: uint16(rx), Tx: tx}

	if total := plan.layout.Total(); total > reg.FIFOWords {
		return plan, fmt.Errorf("%d words needed, %d available: %w", total, reg.FIFOWords, pkg.ErrFIFOOverflow)
	}
	return plan, nil
}

// programFIFOs writes a validated layout to the FIFO size registers,
// flushing every FIFO before and after.
func (c *Controller) programFIFOs(l FifoLayout) error {
	if err := c.flushFIFOs(); err != nil {
		return err
	}
	c.regs.Store(reg.GRXFSIZ, uint32(l.RxDepth))
	for _, tx := range l.Tx {
		v := uint32(tx.Depth)<<reg.FIFO_DEPTH_SHIFT | uint32(tx.Start)&reg.FIFO_START_MASK
		if tx.Number == 0 {
			c.regs.Store(reg.GNPTXFSIZ, v)
		} else {
			c.regs.Store(reg.DIEPTXF(tx.Number), v)
		}
	}
	pkg.LogDebug(pkg.ComponentFIFO, "FIFOs programmed",
		"rx", l.RxDepth, "tx", l.TotalTx(), "total", l.Total())
	return c.flushFIFOs()
}

func (c *Controller) flushFIFOs() error {
	if err := c.flushTx(reg.TXFNUM_ALL); err != nil {
		return err
	}
	return c.flushRx()
}

// flushTx flushes transmit FIFO n, or all of them for reg.TXFNUM_ALL.
func (c *Controller) flushTx(n uint8) error {
	v := c.regs.Load(reg.GRSTCTL)&^reg.GRSTCTL_TXFNUM_MASK |
		uint32(n)<<reg.GRSTCTL_TXFNUM_SHIFT | reg.GRSTCTL_TXFFLSH
	c.regs.Store(reg.GRSTCTL, v)
	return c.waitClear("GRSTCTL.TXFFLSH", reg.GRSTCTL, reg.GRSTCTL_TXFFLSH)
}

func (c *Controller) flushRx() error {
	c.regs.Store(reg.GRSTCTL, c.regs.Load(reg.GRSTCTL)|reg.GRSTCTL_RXFFLSH)
	return c.waitClear("GRSTCTL.RXFFLSH", reg.GRSTCTL, reg.GRSTCTL_RXFFLSH)
}
