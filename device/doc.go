// Package device holds the controller-independent half of a USB device:
// descriptors, setup-request builders and the standard request processor.
//
// # Descriptors
//
// Descriptor types serialize with MarshalTo(buf) and parse with
// Parse*(data, out). [BuildConfiguration] concatenates a configuration
// with its interface, endpoint and class-specific descriptors and fills in
// wTotalLength. [EndpointTable] derives the controller's endpoint table
// from the same blob, so the two cannot disagree.
//
// String descriptors are UTF-16LE, encoded with golang.org/x/text.
//
// # Requests
//
// [Processor] implements [hal.RequestHandler]. Each SETUP packet is first
// offered to the registered [ClassHandler]s, then answered as a standard
// request through the driver's [hal.ControlPipe]. Anything left over is
// reported unhandled and the driver stalls endpoint 0.
//
//	descs := device.NewDescriptors(&device.DeviceDescriptor{
//	    USBVersion:     0x0110,
//	    VendorID:       0x10C4,
//	    ProductID:      0x89A1,
//	    MaxPacketSize0: 64,
//	})
//	blob := device.BuildConfiguration(cfg, parts...)
//	_ = descs.AddConfiguration(blob)
//	ctrl.SetRequestHandler(device.NewProcessor(descs, acm))
package device
