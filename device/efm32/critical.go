package efm32

import "github.com/ardnew/geckousb/device/hal"

// critical masks the controller's interrupt line for its lifetime. exit
// restores the line to the state found on entry unless told otherwise.
//
//	g := c.enterCritical()
//	defer g.exit()
type critical struct {
	line    hal.InterruptLine
	restore bool
}

func (c *Controller) enterCritical() critical {
	return critical{line: c.line, restore: c.line.Disable()}
}

// enableOnExit leaves the line enabled on exit regardless of entry state.
func (g *critical) enableOnExit() { g.restore = true }

// disableOnExit leaves the line masked on exit regardless of entry state.
func (g *critical) disableOnExit() { g.restore = false }

func (g *critical) exit() {
	if g.restore {
		g.line.Enable()
	}
}
