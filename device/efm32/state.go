package efm32

import (
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// busEvent is an input to the device state machine.
type busEvent uint8

const (
	eventPowerPresent busEvent = iota // regulator senses VBUS
	eventPowerAbsent                  // regulator lost VBUS
	eventResetDetect                  // reset seen while suspended
	eventBusReset                     // USBRST
	eventSuspend                      // USBSUSP
	eventWakeup                       // WKUPINT
	eventAddress                      // SET_ADDRESS
	eventConfigure                    // SET_CONFIGURATION
)

var eventNames = [...]string{
	eventPowerPresent: "power-present",
	eventPowerAbsent:  "power-absent",
	eventResetDetect:  "reset-detect",
	eventBusReset:     "bus-reset",
	eventSuspend:      "suspend",
	eventWakeup:       "wakeup",
	eventAddress:      "set-address",
	eventConfigure:    "set-configuration",
}

func (e busEvent) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// nextState returns the state reached from cur on ev, and whether ev is
// accepted in cur. addressed and configured describe the device's
// assigned address and selected configuration; arg is the value carried
// by SET_ADDRESS or SET_CONFIGURATION.
func nextState(cur hal.State, ev busEvent, addressed, configured bool, arg uint8) (hal.State, bool) {
	switch ev {
	case eventPowerPresent:
		return hal.StatePowered, cur == hal.StateUnattached
	case eventPowerAbsent:
		return hal.StateUnattached, true
	case eventResetDetect, eventBusReset:
		return hal.StateDefault, true
	case eventSuspend:
		return hal.StateSuspended, true
	case eventWakeup:
		switch {
		case configured:
			return hal.StateConfigured, true
		case addressed:
			return hal.StateAddressed, true
		default:
			return hal.StatePowered, true
		}
	case eventAddress:
		if cur != hal.StateDefault && cur != hal.StateAddressed {
			return cur, false
		}
		if arg == 0 {
			return hal.StateDefault, true
		}
		return hal.StateAddressed, true
	case eventConfigure:
		if cur != hal.StateAddressed && cur != hal.StateConfigured {
			return cur, false
		}
		if arg == 0 {
			return hal.StateAddressed, true
		}
		return hal.StateConfigured, true
	}
	return cur, false
}

// transition applies ev to the state machine. It reports false, leaving
// the state unchanged, when ev is not accepted in the current state.
func (c *Controller) transition(ev busEvent, arg uint8) bool {
	next, ok := nextState(c.state, ev, c.addressAssigned(), c.configuration != 0, arg)
	if !ok {
		pkg.LogDebug(pkg.ComponentState, "event ignored", "event", ev.String(), "state", c.state.String())
		return false
	}
	c.setState(next)
	return true
}

func (c *Controller) setState(next hal.State) {
	prev := c.state
	c.state = next
	if prev == next {
		return
	}
	pkg.LogDebug(pkg.ComponentState, "state changed", "from", prev.String(), "to", next.String())
	if c.onStateChange != nil {
		c.onStateChange(prev, next)
	}
}

// State returns the device state.
func (c *Controller) State() hal.State {
	g := c.enterCritical()
	defer g.exit()
	return c.state
}
