// Package efm32 drives the USB controller of the EFM32 Giant Gecko in
// device mode.
//
// The controller is a DWC OTG core behind Silicon Labs' regulator and PHY
// routing glue. This package owns every register of that block: it
// partitions the 512-word FIFO RAM from an endpoint table, tracks the
// device state, dispatches interrupts and hands each SETUP packet to a
// [hal.RequestHandler] through the [hal.ControlPipe] it implements.
//
// # Lifecycle
//
//	c := efm32.New(periph, line, efm32.Config{})
//	c.SetRequestHandler(processor)
//	c.SetOnConfigurationChanged(func(cfg uint8) { ... })
//	if err := c.Initialize(table); err != nil {
//	    return err
//	}
//	defer c.Disable()
//
// [Controller.Initialize] validates the whole table and FIFO plan before it
// writes a FIFO register, so configuration errors leave the hardware
// untouched. [Controller.Disable] can be called any number of times.
//
// # Interrupt model
//
// [Controller.HandleInterrupt] is installed as the interrupt line handler.
// Pending core interrupts are serviced in a fixed order: reset detect,
// wakeup, suspend, start-of-frame, enumeration done, bus reset, IN and then
// OUT endpoint traffic. Endpoint 0 is re-armed for SETUP reception at the
// end of every invocation.
//
// Foreground methods mask the interrupt line while they touch shared state,
// so they may be called from the application loop and from callbacks.
//
// # Streams
//
// Once the host selects a configuration, the application activates its
// endpoints with [Controller.ConfigureEndpoint] and moves packets with
// [Controller.Write], [Controller.Read] and [Controller.ClearOUT].
package efm32
