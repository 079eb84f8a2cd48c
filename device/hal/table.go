package hal

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/geckousb/pkg"
)

// Endpoint table record layout: a count byte followed by one standard
// 7-byte endpoint descriptor per endpoint.
const (
	EndpointRecordSize     = 7
	DescriptorTypeEndpoint = 0x05
)

// ParseEndpointTable decodes an endpoint table. The first record must be
// the control endpoint at address 0.
func ParseEndpointTable(table []byte) ([]EndpointConfig, error) {
	if len(table) < 1 {
		return nil, pkg.ErrDescriptorTooShort
	}
	count := int(table[0])
	if count == 0 {
		return nil, fmt.Errorf("empty endpoint table: %w", pkg.ErrInvalidEndpoint)
	}
	if len(table) < 1+count*EndpointRecordSize {
		return nil, fmt.Errorf("%d endpoints need %d bytes, have %d: %w",
			count, 1+count*EndpointRecordSize, len(table), pkg.ErrDescriptorTooShort)
	}

	eps := make([]EndpointConfig, count)
	for i := range eps {
		rec := table[1+i*EndpointRecordSize:]
		if rec[0] != EndpointRecordSize {
			return nil, fmt.Errorf("record %d length %d: %w", i, rec[0], pkg.ErrDescriptorTooShort)
		}
		if rec[1] != DescriptorTypeEndpoint {
			return nil, fmt.Errorf("record %d type 0x%02X: %w", i, rec[1], pkg.ErrDescriptorTypeMismatch)
		}
		eps[i] = EndpointConfig{
			Address:       rec[2],
			Attributes:    rec[3],
			MaxPacketSize: binary.LittleEndian.Uint16(rec[4:6]),
			Interval:      rec[6],
		}
		if eps[i].Address&0x70 != 0 || eps[i].MaxPacketSize == 0 {
			return nil, fmt.Errorf("record %d address 0x%02X size %d: %w",
				i, eps[i].Address, eps[i].MaxPacketSize, pkg.ErrInvalidEndpoint)
		}
	}
	if eps[0].Address != 0 || eps[0].TransferType() != TransferTypeControl {
		return nil, fmt.Errorf("first entry must be control endpoint 0: %w", pkg.ErrInvalidEndpoint)
	}
	return eps, nil
}

// EndpointTable encodes endpoints in the table format read by
// ParseEndpointTable.
func EndpointTable(eps ...EndpointConfig) []byte {
	table := make([]byte, 1+len(eps)*EndpointRecordSize)
	table[0] = uint8(len(eps))
	for i, ep := range eps {
		rec := table[1+i*EndpointRecordSize:]
		rec[0] = EndpointRecordSize
		rec[1] = DescriptorTypeEndpoint
		rec[2] = ep.Address
		rec[3] = ep.Attributes
		binary.LittleEndian.PutUint16(rec[4:6], ep.MaxPacketSize)
		rec[6] = ep.Interval
	}
	return table
}
