package efm32

import (
	"fmt"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// MaxEndpoints is the registry capacity: the control endpoint plus every
// IN and OUT hardware context.
const MaxEndpoints = 1 + 2*(reg.NumEndpoints-1)

// Lifecycle is the transfer state of an endpoint.
type Lifecycle uint8

// Endpoint lifecycle values.
const (
	LifecycleIdle   Lifecycle = iota // No transfer programmed
	LifecycleActive                  // Transfer handed to the controller
)

// String returns the lifecycle name.
func (l Lifecycle) String() string {
	if l == LifecycleActive {
		return "active"
	}
	return "idle"
}

// CompletionFunc is invoked once, in interrupt context, when a transfer on
// an endpoint completes. n is the number of bytes moved.
type CompletionFunc func(status pkg.TransferStatus, n int)

// EndpointState is the runtime state of one endpoint.
type EndpointState struct {
	Address          uint8     // Address including direction bit
	Number           uint8     // Endpoint number (0-15)
	In               bool      // Device-to-host direction
	Type             uint8     // hal.TransferType* value
	BufferOffset     int       // Packet buffer offset in the DMA window
	PacketSize       uint16    // Maximum packet size
	FIFONumber       uint8     // Transmit FIFO number (IN endpoints and control)
	FIFODepth        uint16    // FIFO requirement in 32-bit words
	BytesRemaining   int       // Bytes left in the current transfer
	BytesTransferred int       // Bytes moved by the last transfer
	Lifecycle        Lifecycle // Idle or Active

	maxPacket  uint16
	requested  int
	received   bool
	halted     bool
	configured bool
	complete   CompletionFunc
}

// IsControl reports whether this is the control endpoint.
func (e *EndpointState) IsControl() bool {
	return e.Type == hal.TransferTypeControl
}

// registry is a fixed-capacity endpoint table with per-direction index
// tables keyed by endpoint number. Index entries hold slot+1; zero means
// no endpoint.
type registry struct {
	eps      [MaxEndpoints]EndpointState
	count    int
	inIndex  [16]uint8
	outIndex [16]uint8
}

func (r *registry) reset() {
	*r = registry{}
}

// add appends an endpoint and indexes it by direction and number.
func (r *registry) add(ep EndpointState) (*EndpointState, error) {
	if r.count == len(r.eps) {
		return nil, fmt.Errorf("endpoint 0x%02X: %w", ep.Address, pkg.ErrNoResources)
	}
	if _, dup := r.lookup(ep.Address); dup {
		return nil, fmt.Errorf("duplicate endpoint 0x%02X: %w", ep.Address, pkg.ErrInvalidEndpoint)
	}
	r.eps[r.count] = ep
	slot := uint8(r.count + 1)
	switch {
	case ep.IsControl():
		r.inIndex[ep.Number] = slot
		r.outIndex[ep.Number] = slot
	case ep.In:
		r.inIndex[ep.Number] = slot
	default:
		r.outIndex[ep.Number] = slot
	}
	r.count++
	return &r.eps[r.count-1], nil
}

// lookup resolves an endpoint address to its registry slot.
func (r *registry) lookup(address uint8) (*EndpointState, bool) {
	n := address & hal.EndpointNumberMask
	idx := r.outIndex[n]
	if address&hal.EndpointDirectionIn != 0 {
		idx = r.inIndex[n]
	}
	if idx == 0 {
		return nil, false
	}
	return &r.eps[idx-1], true
}

func (r *registry) in(n uint8) *EndpointState {
	ep, _ := r.lookup(n | hal.EndpointDirectionIn)
	return ep
}

func (r *registry) out(n uint8) *EndpointState {
	ep, _ := r.lookup(n)
	return ep
}

func (r *registry) all() []EndpointState {
	return r.eps[:r.count]
}

// abort returns every endpoint to Idle and drops pending completions
// without invoking them.
func (r *registry) abort() {
	for i := range r.eps[:r.count] {
		ep := &r.eps[i]
		ep.Lifecycle = LifecycleIdle
		ep.BytesRemaining = 0
		ep.received = false
		ep.complete = nil
		if !ep.IsControl() {
			ep.configured = false
			ep.halted = false
		}
	}
}

// EndpointFor returns a copy of the state of the endpoint at address.
func (c *Controller) EndpointFor(address uint8) (EndpointState, bool) {
	g := c.enterCritical()
	defer g.exit()
	ep, ok := c.endpoints.lookup(address)
	if !ok {
		return EndpointState{}, false
	}
	return *ep, true
}

// Endpoints returns a copy of every registered endpoint, in table order.
func (c *Controller) Endpoints() []EndpointState {
	g := c.enterCritical()
	defer g.exit()
	return append([]EndpointState(nil), c.endpoints.all()...)
}
