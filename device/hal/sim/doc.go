// Package sim simulates the EFM32GG USB peripheral and a USB host for
// tests and the vcpsim tool.
//
// [Controller] implements [hal.Peripheral], [hal.ClockGate] and, through
// [Controller.Line], [hal.InterruptLine]. Register writes apply the
// side effects the driver relies on (write-one-to-clear status, self-
// clearing resets, DMA transfers into the window) and deliver the
// interrupt synchronously when it is asserted and unmasked.
//
// Bus stimuli such as [Controller.PowerOn], [Controller.BusReset] and
// [Controller.Setup] run the driver's handler before returning, so a test
// can assert on the result immediately:
//
//	s := sim.New(0)
//	c := efm32.New(s, s.Line(), efm32.Config{})
//	_ = c.Initialize(table)
//	host := sim.NewHost(s)
//	e, err := host.Enumerate(7)
//
// [Host] layers standard requests on top of [Controller.Setup].
package sim
