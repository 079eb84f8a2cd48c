package pkg

import "errors"

// Configuration errors, reported by controller initialization before any
// FIFO register is written.
var (
	// ErrFIFOOverflow indicates the endpoint table needs more FIFO RAM than
	// the controller provides.
	ErrFIFOOverflow = errors.New("FIFO requirement exceeds controller RAM")

	// ErrNoResources indicates more endpoints than the controller has
	// hardware contexts or transmit FIFOs for.
	ErrNoResources = errors.New("no resources available")

	// ErrNoMemory indicates endpoint buffers do not fit the DMA window.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrInvalidEndpoint indicates an invalid endpoint address or table entry.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Hardware faults.
var (
	// ErrHardwareFault indicates a controller status bit never reached the
	// expected value within the poll limit.
	ErrHardwareFault = errors.New("hardware fault")

	// ErrNotInitialized indicates an operation that needs an initialized
	// controller.
	ErrNotInitialized = errors.New("controller not initialized")
)

// Transfer errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrNotReady indicates the endpoint has no data or is still busy.
	ErrNotReady = errors.New("endpoint not ready")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// TransferStatus represents the completion status of an endpoint transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusTimeout                         // Transfer timed out
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	default:
		return ErrProtocol
	}
}
