// Package cdc implements the CDC Abstract Control Model function of a USB
// virtual serial port.
//
// The function has two interfaces. The communications interface carries
// the class requests on endpoint 0 and an interrupt IN endpoint for
// notifications. The data interface carries the serial stream on a bulk
// OUT and a bulk IN endpoint.
//
// # Requests
//
// ACM answers four class requests addressed to an interface:
//
//   - GET_LINE_CODING returns the 7-byte line coding.
//   - SET_LINE_CODING stores a new line coding and applies it to the UART
//     when the UART can represent it.
//   - SET_CONTROL_LINE_STATE records DTR and RTS.
//   - SEND_BREAK reports the break duration to a callback.
//
// Anything else is left to the standard request processor, which stalls
// what nobody handles.
//
// # Wiring
//
//	descs, _ := cdc.DemoDescriptors(cdc.DefaultIdentity, cdc.DefaultEndpoints, 64)
//	ctrl := efm32.New(regs, line, efm32.Config{})
//	acm := cdc.NewACM(ctrl, cdc.DefaultEndpoints)
//	ctrl.SetRequestHandler(device.NewProcessor(descs, acm))
//	ctrl.SetOnConfigurationChanged(acm.ConfigurationChanged)
//	_ = ctrl.Initialize(cdc.DefaultEndpoints.Table(64))
//	_ = acm.Bridge(ctx, uart)
//
// Bridge and Echo poll the data endpoints from the foreground. Step and
// EchoStep do one round of the same work for callers that run their own
// loop.
package cdc
