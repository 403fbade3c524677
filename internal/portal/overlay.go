package portal

import (
	"context"

	"go.uber.org/zap"
)

// dismissOverlays clears the welcome modal and promo overlays the portal
// stacks over the dashboard. Every visible closer is clicked (the overlays
// come in layers), Escape is pressed as a universal fallback, and a residual
// dialog gets a generic close attempt or a corner click. Two passes, since
// closing one overlay can reveal the next.
func (c *Client) dismissOverlays(ctx context.Context) {
	for pass := 0; pass < 2; pass++ {
		for _, s := range overlayClosers.Strategies {
			if ctx.Err() != nil {
				return
			}
			if !c.drv.Visible(ctx, s.Query, overlayClosers.Timeout) {
				continue
			}
			if err := c.drv.Click(ctx, s.Query); err != nil {
				continue
			}
			zap.L().Debug("portal: overlay dismissed", zap.String("strategy", s.Name))
			sleep(ctx, c.wait.nudge)
		}

		_ = c.drv.PressEscape(ctx)
		sleep(ctx, c.wait.nudge)

		n, err := c.drv.Count(ctx, residualDialogQuery)
		if err != nil || n == 0 {
			return
		}
		zap.L().Debug("portal: residual dialog, forcing close", zap.Int("dialogs", n))
		if s, ok := Resolve(ctx, c.drv, genericClose); ok {
			_ = c.drv.Click(ctx, s.Query)
		} else {
			// Overlay without a detectable control: click the top corner to
			// trigger its outside-click handler.
			_ = c.drv.ClickAt(ctx, 10, 10)
		}
		sleep(ctx, c.wait.nudge)
	}
}
