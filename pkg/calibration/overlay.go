package calibration

import (
	"fmt"

	"github.com/teslashibe/go-eyecommander/pkg/overlay"
)

// Overlay describes what to draw over the current frame.
func (c *Controller) Overlay() overlay.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSetup, StateAwaitStart:
		return overlay.Guide(overlay.Green).
			Add(overlay.Message("press confirm to begin calibration"))

	case StateAwaitClass:
		l, _ := c.labelLocked()
		return overlay.Guide(overlay.Green).
			Add(overlay.Message(fmt.Sprintf("look %s, press confirm to begin", l)))

	case StateCapturing:
		l, _ := c.labelLocked()
		return overlay.Guide(overlay.Red).
			Add(overlay.Message(fmt.Sprintf("capturing %s", l))).
			Add(overlay.Status(fmt.Sprintf("%d / %d", c.captured, c.cfg.FramesPerClass)))

	case StateRetrain, StateCleanup:
		return overlay.Guide(overlay.Green).
			Add(overlay.Message("retraining..."))

	case StateFailed:
		return overlay.Guide(overlay.Neutral).
			Add(overlay.Message("calibration failed, using base model"))
	}
	return overlay.Guide(overlay.Neutral)
}
