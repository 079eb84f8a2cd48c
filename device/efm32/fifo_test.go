package efm32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

var (
	ep0      = hal.EndpointConfig{Address: 0x00, Attributes: hal.TransferTypeControl, MaxPacketSize: 64}
	notifyIn = hal.EndpointConfig{Address: 0x81, Attributes: hal.TransferTypeInterrupt, MaxPacketSize: 16, Interval: 0xFF}
	bulkIn   = hal.EndpointConfig{Address: 0x82, Attributes: hal.TransferTypeBulk, MaxPacketSize: 64, Interval: 5}
	bulkOut  = hal.EndpointConfig{Address: 0x03, Attributes: hal.TransferTypeBulk, MaxPacketSize: 64, Interval: 5}
)

func serialEndpoints() []hal.EndpointConfig {
	return []hal.EndpointConfig{ep0, notifyIn, bulkIn, bulkOut}
}

func TestPlanFIFOs_SerialLayout(t *testing.T) {
	layout, err := PlanFIFOs(serialEndpoints(), DefaultOutEndpoints)
	require.NoError(t, err)

	// 16 (control) + 34 (bulk OUT) + 10 + 1 + 2*(2+1)
	assert.Equal(t, uint16(67), layout.RxDepth)
	assert.Equal(t, []TxFifo{
		{Number: 0, Address: 0x00, Start: 67, Depth: 16},
		{Number: 1, Address: 0x81, Start: 83, Depth: 4},
		{Number: 2, Address: 0x82, Start: 87, Depth: 32},
	}, layout.Tx)
	assert.Equal(t, 52, layout.TotalTx())
	assert.Equal(t, 119, layout.Total())
}

func TestPlanFIFOs_PartialWords(t *testing.T) {
	eps := []hal.EndpointConfig{
		ep0,
		{Address: 0x81, Attributes: hal.TransferTypeInterrupt, MaxPacketSize: 10, Interval: 8},
		{Address: 0x02, Attributes: hal.TransferTypeInterrupt, MaxPacketSize: 13, Interval: 8},
	}
	layout, err := PlanFIFOs(eps, DefaultOutEndpoints)
	require.NoError(t, err)

	// 16 (control) + (4+1) (interrupt OUT) + 10 + 1 + 2*(2+1)
	assert.Equal(t, uint16(38), layout.RxDepth)
	assert.Equal(t, []TxFifo{
		{Number: 0, Address: 0x00, Start: 38, Depth: 16},
		{Number: 1, Address: 0x81, Start: 54, Depth: 3},
	}, layout.Tx)
}

func TestPlanFIFOs_Errors(t *testing.T) {
	big := func(addr uint8) hal.EndpointConfig {
		return hal.EndpointConfig{Address: addr, Attributes: hal.TransferTypeBulk, MaxPacketSize: 512}
	}
	out := func(addr uint8) hal.EndpointConfig {
		return hal.EndpointConfig{Address: addr, Attributes: hal.TransferTypeBulk, MaxPacketSize: 64}
	}

	tests := []struct {
		name    string
		eps     []hal.EndpointConfig
		wantErr error
	}{
		{"overflow", []hal.EndpointConfig{ep0, big(0x81), big(0x82)}, pkg.ErrFIFOOverflow},
		{"missing control", []hal.EndpointConfig{bulkIn}, pkg.ErrInvalidEndpoint},
		{"second control", []hal.EndpointConfig{ep0, {Address: 0x01, Attributes: hal.TransferTypeControl, MaxPacketSize: 8}}, pkg.ErrInvalidEndpoint},
		{"isochronous", []hal.EndpointConfig{ep0, {Address: 0x81, Attributes: hal.TransferTypeIsochronous, MaxPacketSize: 64}}, pkg.ErrInvalidEndpoint},
		{"endpoint number", []hal.EndpointConfig{ep0, out(0x07)}, pkg.ErrNoResources},
		{"OUT contexts", []hal.EndpointConfig{ep0, out(0x01), out(0x02), out(0x03)}, pkg.ErrNoResources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanFIFOs(tt.eps, DefaultOutEndpoints)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlanFIFOs_TotalWithinRAM(t *testing.T) {
	types := []uint8{hal.TransferTypeBulk, hal.TransferTypeInterrupt}
	sizes := []uint16{8, 16, 32, 64}

	for n := uint8(1); n < reg.NumEndpoints; n++ {
		for _, typ := range types {
			for _, size := range sizes {
				eps := []hal.EndpointConfig{ep0}
				for i := uint8(1); i <= n; i++ {
					eps = append(eps, hal.EndpointConfig{
						Address:       hal.EndpointDirectionIn | i,
						Attributes:    typ,
						MaxPacketSize: size,
					})
				}
				layout, err := PlanFIFOs(eps, DefaultOutEndpoints)
				if err != nil {
					assert.ErrorIs(t, err, pkg.ErrFIFOOverflow)
					continue
				}
				assert.LessOrEqual(t, layout.Total(), reg.FIFOWords)
				assert.Len(t, layout.Tx, int(n)+1)
				for i, tx := range layout.Tx {
					assert.Equal(t, uint8(i), tx.Number)
				}
			}
		}
	}
}

func TestInitialize_ProgramsFIFOs(t *testing.T) {
	c, s := newTestController(t, hal.EndpointTable(serialEndpoints()...))

	assert.Equal(t, uint32(67), s.Load(reg.GRXFSIZ))
	assert.Equal(t, uint32(16<<16|67), s.Load(reg.GNPTXFSIZ))
	assert.Equal(t, uint32(4<<16|83), s.Load(reg.DIEPTXF(1)))
	assert.Equal(t, uint32(32<<16|87), s.Load(reg.DIEPTXF(2)))
	assert.Equal(t, 119, c.Layout().Total())
}

func TestInitialize_OverflowWritesNoFIFORegister(t *testing.T) {
	c, s := newUninitialized()
	table := hal.EndpointTable(ep0,
		hal.EndpointConfig{Address: 0x81, Attributes: hal.TransferTypeBulk, MaxPacketSize: 512},
		hal.EndpointConfig{Address: 0x82, Attributes: hal.TransferTypeBulk, MaxPacketSize: 512},
	)

	err := c.Initialize(table)
	require.ErrorIs(t, err, pkg.ErrFIFOOverflow)
	assert.False(t, c.Initialized())
	assert.Zero(t, s.Writes(reg.GRXFSIZ))
	assert.Zero(t, s.Writes(reg.GNPTXFSIZ))
	assert.Zero(t, s.Writes(reg.DIEPTXF(1)))
	assert.Zero(t, s.SoftResets())
}
