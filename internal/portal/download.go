package portal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/model"
)

// cardProbe bounds the visibility checks for a record's ID text and card
// container during the download flow.
const cardProbe = 3 * time.Second

// FetchDocument locates a record's card by portal ID (advancing listing
// pages up to the search cap), optionally marks it favorite, and captures
// its document bundle. The outcome carries one of three shapes: a captured
// path, an explicit no-document verdict (Available=false, no error), or a
// failure message. It never panics the batch: everything lands in the
// outcome.
func (c *Client) FetchDocument(ctx context.Context, portalID string, favorite bool) model.DownloadOutcome {
	out := model.DownloadOutcome{PortalID: portalID}
	log := zap.L().With(zap.String("portal_id", portalID))
	log.Info("portal: fetching document")

	if !c.locateNotice(ctx, portalID) {
		out.Error = fmt.Sprintf("record %s not located within %d listing pages", portalID, c.searchPageCap())
		log.Warn("portal: record not located")
		return out
	}

	root := cardRootXPath(portalID)
	if !c.drv.Visible(ctx, root, cardProbe) {
		out.Error = "card container not isolated"
		log.Warn("portal: card container not isolated")
		return out
	}
	if err := c.drv.ScrollIntoView(ctx, root); err != nil {
		log.Debug("portal: card scroll failed", zap.Error(err))
	}
	c.dismissOverlays(ctx)

	if favorite {
		c.markFavorite(ctx, root, portalID)
	}

	if _, ok := Resolve(ctx, c.drv, Scoped(root, noDocumentMarker)); ok {
		log.Info("portal: record offers no document")
		return out // Available stays false with no error: a legitimate outcome
	}

	control, ok := c.resolveDownloadControl(ctx, root, log)
	if !ok {
		out.Error = "download control not found after expansion attempts"
		log.Warn("portal: download control not found")
		return out
	}

	if err := c.drv.ScrollIntoView(ctx, control); err != nil {
		log.Debug("portal: control scroll failed", zap.Error(err))
	}
	sleep(ctx, c.wait.nudge)

	dir := filepath.Join(c.dirs.Zips(), "edital_"+portalID)
	path, err := c.drv.Download(ctx, dir, c.cfg.DownloadTimeout(), func(ctx context.Context) error {
		return c.drv.Click(ctx, control)
	})
	if err != nil {
		out.Error = err.Error()
		log.Warn("portal: document capture failed", zap.Error(err))
		return out
	}

	out.Path = path
	out.Available = true
	log.Info("portal: document captured", zap.String("path", path))
	return out
}

// FetchBatch downloads documents for the given portal IDs sequentially,
// pacing between records. Outcomes preserve input order; individual failures
// never abort the batch.
func (c *Client) FetchBatch(ctx context.Context, portalIDs []string, favorite bool) []model.DownloadOutcome {
	outcomes := make([]model.DownloadOutcome, 0, len(portalIDs))
	for _, id := range portalIDs {
		outcomes = append(outcomes, c.FetchDocument(ctx, id, favorite))
		c.drv.Pace(ctx)
	}

	captured := 0
	for _, o := range outcomes {
		if o.OK() {
			captured++
		}
	}
	zap.L().Info("portal: batch download finished",
		zap.Int("requested", len(portalIDs)),
		zap.Int("captured", captured),
	)
	return outcomes
}

// locateNotice pages through the listing until the record's ID text is
// visible, bounded by the search page cap.
func (c *Client) locateNotice(ctx context.Context, portalID string) bool {
	idQuery := noticeTextXPath(portalID)
	for page := 0; page < c.searchPageCap(); page++ {
		if c.drv.Visible(ctx, idQuery, cardProbe) {
			return true
		}
		next, ok := Resolve(ctx, c.drv, searchNext)
		if !ok {
			return false
		}
		zap.L().Debug("portal: record not on page, advancing",
			zap.String("portal_id", portalID),
			zap.Int("page", page+1),
		)
		if err := c.drv.Click(ctx, next.Query); err != nil {
			return false
		}
		sleep(ctx, c.wait.settle)
	}
	return false
}

// resolveDownloadControl returns a clickable download query inside the card,
// expanding the card when it starts collapsed: dedicated expand control →
// click at the card's visual center → script scan over the card's links.
func (c *Client) resolveDownloadControl(ctx context.Context, root string, log *zap.Logger) (string, bool) {
	control := Scoped(root, downloadControl)
	if s, ok := Resolve(ctx, c.drv, control); ok {
		return s.Query, true
	}

	log.Debug("portal: card collapsed, expanding")
	expanded := false
	if s, ok := Resolve(ctx, c.drv, Scoped(root, expandControl)); ok {
		if err := c.drv.Click(ctx, s.Query); err == nil {
			log.Debug("portal: card expanded", zap.String("strategy", s.Name))
			expanded = true
		}
	}
	if !expanded {
		var rect struct {
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Width float64 `json:"width"`
		}
		if err := c.drv.Eval(ctx, boundingRectExpr(root), &rect); err == nil && rect.Width > 0 {
			// Collapsed cards expand on a header click; aim just below the
			// top edge, centered.
			_ = c.drv.ClickAt(ctx, rect.X+rect.Width/2, rect.Y+30)
			log.Debug("portal: card expanded via center click")
		}
	}
	sleep(ctx, c.wait.expand)

	if s, ok := Resolve(ctx, c.drv, control); ok {
		return s.Query, true
	}

	// Lazy-rendered cards sometimes only mount their controls in view.
	_ = c.drv.Eval(ctx, smoothScrollExpr(root), nil)
	sleep(ctx, c.wait.settle)
	if s, ok := Resolve(ctx, c.drv, control); ok {
		return s.Query, true
	}

	var clicked bool
	if err := c.drv.Eval(ctx, linkScanExpr(root), &clicked); err == nil && clicked {
		log.Debug("portal: card link clicked via script scan")
		sleep(ctx, c.wait.settle)
		if s, ok := Resolve(ctx, c.drv, control); ok {
			return s.Query, true
		}
	}
	return "", false
}

// markFavorite clicks the star toggle inside the card so the record lands in
// the account's managed list. Best effort: a miss is logged, never fatal.
func (c *Client) markFavorite(ctx context.Context, root, portalID string) bool {
	s, ok := Resolve(ctx, c.drv, Scoped(root, favoriteToggle))
	if !ok {
		zap.L().Warn("portal: favorite toggle not found", zap.String("portal_id", portalID))
		return false
	}
	if err := c.drv.Click(ctx, s.Query); err != nil {
		zap.L().Warn("portal: favorite click failed",
			zap.String("portal_id", portalID),
			zap.Error(err),
		)
		return false
	}
	zap.L().Info("portal: record favorited", zap.String("portal_id", portalID))
	sleep(ctx, c.wait.nudge)
	return true
}

// boundingRectExpr returns the card's viewport rectangle as a plain object.
func boundingRectExpr(rootXPath string) string {
	return `(el => { if (!el) return {x: 0, y: 0, width: 0}; const r = el.getBoundingClientRect(); return {x: r.x, y: r.y, width: r.width}; })(` +
		xpathFirst(rootXPath) + `)`
}

// smoothScrollExpr centers the card in the viewport.
func smoothScrollExpr(rootXPath string) string {
	return `(el => { if (el) el.scrollIntoView({ behavior: 'smooth', block: 'center' }); })(` +
		xpathFirst(rootXPath) + `)`
}

// linkScanExpr clicks the first link or button inside the card whose caption
// looks download-ish, returning whether anything was clicked.
func linkScanExpr(rootXPath string) string {
	return `(el => {
	if (!el) return false;
	const links = el.querySelectorAll('a[href], button');
	for (const link of links) {
		const text = link.textContent || '';
		if (/baixar|edital|download/i.test(text)) {
			link.click();
			return true;
		}
	}
	return false;
})(` + xpathFirst(rootXPath) + `)`
}
