package portal

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ExportListing triggers the bulletin's "Gerar .xlsx" export and captures
// the download, returning the file path. Failures here are expected to be
// non-fatal for callers: the page walk covers the same records.
func (c *Client) ExportListing(ctx context.Context) (string, error) {
	// The export only covers the current bulletin when its checkbox is on.
	if toggle, ok := Resolve(ctx, c.drv, selectBulletinToggle); ok {
		if err := c.drv.Click(ctx, toggle.Query); err == nil {
			zap.L().Debug("portal: bulletin selection toggled")
			sleep(ctx, c.wait.nudge)
		}
	}

	// Scroll through the whole listing so the SPA loads every record into
	// the export, then give the control time to enable.
	if err := c.drv.Eval(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil); err != nil {
		zap.L().Debug("portal: listing scroll failed", zap.Error(err))
	}
	sleep(ctx, c.wait.settle)

	control, ok := Resolve(ctx, c.drv, exportControl)
	if !ok {
		return "", eris.New("portal: export control not found")
	}
	if err := c.drv.ScrollIntoView(ctx, control.Query); err != nil {
		zap.L().Debug("portal: export control scroll failed", zap.Error(err))
	}
	sleep(ctx, c.wait.export)

	path, err := c.drv.Download(ctx, c.dirs.XLSX(), c.cfg.DownloadTimeout(), func(ctx context.Context) error {
		return c.drv.Click(ctx, control.Query)
	})
	if err != nil {
		return "", eris.Wrap(err, "portal: capture export")
	}

	zap.L().Info("portal: listing exported", zap.String("path", path))
	return path, nil
}
