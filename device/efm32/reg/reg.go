// Package reg holds the EFM32GG USB register map: byte offsets from the
// USB block base and the bit fields the driver uses, as laid out in the
// EFM32GG reference manual.
package reg

// Peripheral base on silicon.
const Base = 0x400C4000

// System registers.
const (
	CTRL   = 0x000
	STATUS = 0x004
	IF     = 0x008
	IFS    = 0x00C
	IFC    = 0x010
	IEN    = 0x014
	ROUTE  = 0x018
)

// Core global registers.
const (
	GOTGCTL   = 0x3C000
	GAHBCFG   = 0x3C008
	GUSBCFG   = 0x3C00C
	GRSTCTL   = 0x3C010
	GINTSTS   = 0x3C014
	GINTMSK   = 0x3C018
	GRXFSIZ   = 0x3C024
	GNPTXFSIZ = 0x3C028
	DIEPTXF1  = 0x3C104 // DIEPTXFn = DIEPTXF1 + 4*(n-1)
)

// Device mode registers.
const (
	DCFG       = 0x3C800
	DCTL       = 0x3C804
	DSTS       = 0x3C808
	DIEPMSK    = 0x3C810
	DOEPMSK    = 0x3C814
	DAINT      = 0x3C818
	DAINTMSK   = 0x3C81C
	DIEPEMPMSK = 0x3C834
	PCGCCTL    = 0x3CE00
)

// Per-endpoint register blocks. IN endpoint n starts at DIEP0 + n*EPStride,
// OUT endpoint n at DOEP0 + n*EPStride.
const (
	DIEP0    = 0x3C900
	DOEP0    = 0x3CB00
	EPStride = 0x20

	EPCTL     = 0x00
	EPINT     = 0x08
	EPTSIZ    = 0x10
	EPDMAADDR = 0x14
)

// Hardware limits.
const (
	NumEndpoints = 7   // EP0 plus six IN and six OUT contexts
	NumTxFIFOs   = 6   // dedicated IN FIFOs besides the control FIFO
	FIFOWords    = 512 // FIFO RAM in 32-bit words
)

// DIEPCTL returns the control register offset of IN endpoint n.
func DIEPCTL(n uint8) uint32 { return DIEP0 + uint32(n)*EPStride + EPCTL }

// DIEPINT returns the interrupt register offset of IN endpoint n.
func DIEPINT(n uint8) uint32 { return DIEP0 + uint32(n)*EPStride + EPINT }

// DIEPTSIZ returns the transfer size register offset of IN endpoint n.
func DIEPTSIZ(n uint8) uint32 { return DIEP0 + uint32(n)*EPStride + EPTSIZ }

// DIEPDMAADDR returns the DMA address register offset of IN endpoint n.
func DIEPDMAADDR(n uint8) uint32 { return DIEP0 + uint32(n)*EPStride + EPDMAADDR }

// DOEPCTL returns the control register offset of OUT endpoint n.
func DOEPCTL(n uint8) uint32 { return DOEP0 + uint32(n)*EPStride + EPCTL }

// DOEPINT returns the interrupt register offset of OUT endpoint n.
func DOEPINT(n uint8) uint32 { return DOEP0 + uint32(n)*EPStride + EPINT }

// DOEPTSIZ returns the transfer size register offset of OUT endpoint n.
func DOEPTSIZ(n uint8) uint32 { return DOEP0 + uint32(n)*EPStride + EPTSIZ }

// DOEPDMAADDR returns the DMA address register offset of OUT endpoint n.
func DOEPDMAADDR(n uint8) uint32 { return DOEP0 + uint32(n)*EPStride + EPDMAADDR }

// DIEPTXF returns the FIFO size register offset of TX FIFO n (n >= 1).
func DIEPTXF(n uint8) uint32 { return DIEPTXF1 + 4*uint32(n-1) }

// CTRL
const CTRL_VREGOSEN = 1 << 17

// STATUS
const STATUS_VREGOS = 1 << 0

// IF, IFS, IFC, IEN
const (
	IF_VREGOSH = 1 << 0
	IF_VREGOSL = 1 << 1
)

// ROUTE
const (
	ROUTE_PHYPEN    = 1 << 0
	ROUTE_VBUSENPEN = 1 << 1
)

// GAHBCFG
const (
	GAHBCFG_GLBLINTRMSK  = 1 << 0
	GAHBCFG_HBSTLEN_MASK = 0xF << 1
	GAHBCFG_HBSTLEN_INCR = 1 << 1
	GAHBCFG_DMAEN        = 1 << 5
)

// GUSBCFG
const (
	GUSBCFG_FORCEHSTMODE = 1 << 29
	GUSBCFG_FORCEDEVMODE = 1 << 30
)

// GRSTCTL
const (
	GRSTCTL_CSFTRST      = 1 << 0
	GRSTCTL_RXFFLSH      = 1 << 4
	GRSTCTL_TXFFLSH      = 1 << 5
	GRSTCTL_TXFNUM_MASK  = 0x1F << 6
	GRSTCTL_TXFNUM_SHIFT = 6
	GRSTCTL_AHBIDLE      = 1 << 31

	TXFNUM_ALL = 0x10
)

// GINTSTS, GINTMSK
const (
	GINT_SOF      = 1 << 3
	GINT_USBSUSP  = 1 << 11
	GINT_USBRST   = 1 << 12
	GINT_ENUMDONE = 1 << 13
	GINT_IEPINT   = 1 << 18
	GINT_OEPINT   = 1 << 19
	GINT_RESETDET = 1 << 23
	GINT_WKUPINT  = 1 << 31
)

// GRXFSIZ, GNPTXFSIZ, DIEPTXFn
const (
	FIFO_DEPTH_SHIFT = 16
	FIFO_START_MASK  = 0xFFFF
)

// DCFG
const (
	DCFG_DEVSPD_MASK   = 0x3
	DCFG_DEVSPD_FS     = 0x3
	DCFG_NZSTSOUTHSHK  = 1 << 2
	DCFG_DEVADDR_SHIFT = 4
	DCFG_DEVADDR_MASK  = 0x7F << 4
	DCFG_PERFRINT_MASK = 0x3 << 11
)

// DCTL
const (
	DCTL_RMTWKUPSIG = 1 << 0
	DCTL_SFTDISCON  = 1 << 1
)

// DSTS
const (
	DSTS_SUSPSTS       = 1 << 0
	DSTS_ENUMSPD_MASK  = 0x3 << 1
	DSTS_ENUMSPD_SHIFT = 1
	DSTS_SOFFN_MASK    = 0x3FFF << 8
	DSTS_SOFFN_SHIFT   = 8
)

// DAINT, DAINTMSK
const (
	DAINT_IN_MASK   = 0xFFFF
	DAINT_OUT_SHIFT = 16
)

// DIEPMSK, DOEPMSK, DIEPnINT, DOEPnINT
const (
	EPINT_XFERCOMPL = 1 << 0
	EPINT_EPDISBLD  = 1 << 1
	EPINT_AHBERR    = 1 << 2
	EPINT_SETUP     = 1 << 3 // OUT endpoints
	EPINT_TIMEOUT   = 1 << 3 // IN endpoints
)

// DIEPnCTL, DOEPnCTL
const (
	EPCTL_MPS_MASK     = 0x7FF
	EPCTL_USBACTEP     = 1 << 15
	EPCTL_DPIDEOF      = 1 << 16
	EPCTL_NAKSTS       = 1 << 17
	EPCTL_EPTYPE_SHIFT = 18
	EPCTL_EPTYPE_MASK  = 0x3 << 18
	EPCTL_STALL        = 1 << 21
	EPCTL_TXFNUM_SHIFT = 22
	EPCTL_TXFNUM_MASK  = 0xF << 22
	EPCTL_CNAK         = 1 << 26
	EPCTL_SNAK         = 1 << 27
	EPCTL_SETD0PIDEF   = 1 << 28
	EPCTL_EPDIS        = 1 << 30
	EPCTL_EPENA        = 1 << 31

	// Write-only bits that must not be written back on read-modify-write.
	EPCTL_WO_MASK = EPCTL_CNAK | EPCTL_SNAK | EPCTL_SETD0PIDEF | 1<<29

	// EP0 encodes its packet size in MPS[1:0].
	EP0_MPS_64 = 0
	EP0_MPS_32 = 1
	EP0_MPS_16 = 2
	EP0_MPS_8  = 3
)

// DIEPnTSIZ, DOEPnTSIZ
const (
	TSIZ_XFERSIZE_MASK = 0x7FFFF
	TSIZ_PKTCNT_SHIFT  = 19
	TSIZ_PKTCNT_MASK   = 0x3FF << 19
	TSIZ_SUPCNT_SHIFT  = 29
	TSIZ_SUPCNT_MASK   = 0x3 << 29
)

// PCGCCTL
const (
	PCGCCTL_STOPPCLK      = 1 << 0
	PCGCCTL_PWRCLMP       = 1 << 2
	PCGCCTL_RSTPDWNMODULE = 1 << 3
)
