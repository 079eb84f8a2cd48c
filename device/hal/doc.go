// Package hal defines the hardware boundary of the geckousb device stack.
//
// The controller driver never touches memory directly. It reads and writes
// 32-bit registers through a [Registers] block, places SETUP and endpoint
// buffers in the DMA window of a [Peripheral], and manages its interrupt
// through an [InterruptLine]. On silicon these wrap the memory-mapped USB
// block and the NVIC; under test they are provided by the simulator in
// [github.com/ardnew/geckousb/device/hal/sim].
//
// The package also holds the small data model shared by the driver and the
// layers above it:
//
//   - [SetupPacket], the request header of a control transfer
//   - [EndpointConfig] and the endpoint table codec
//   - [State], the device connection state
//   - [ControlPipe] and [RequestHandler], the contract between the driver's
//     control-transfer bridge and the request processor
package hal
