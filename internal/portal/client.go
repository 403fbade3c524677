// Package portal drives the ConLicitação SPA: login, bulletin navigation,
// record listing (export trigger or page walk) and per-record document
// downloads. Element lookup goes through a strategy catalog so markup churn
// on the portal degrades gracefully instead of breaking a hardcoded query.
package portal

import (
	"context"
	"strconv"
	"time"

	"github.com/cwolfbr/indflow/internal/config"
)

// Driver is the browser operation set the portal flows need. It is satisfied
// by *browser.Session; tests script it directly.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Visible(ctx context.Context, query string, timeout time.Duration) bool
	Click(ctx context.Context, query string) error
	ClickNth(ctx context.Context, query string, idx int) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, query, value string) error
	Text(ctx context.Context, query string) (string, error)
	Texts(ctx context.Context, query string) ([]string, error)
	Attributes(ctx context.Context, query, attr string) ([]string, error)
	Count(ctx context.Context, query string) (int, error)
	HTML(ctx context.Context, query string) ([]string, error)
	Eval(ctx context.Context, expr string, out any) error
	Location(ctx context.Context) (string, error)
	PressEscape(ctx context.Context) error
	ScrollIntoView(ctx context.Context, query string) error
	Screenshot(ctx context.Context, path string) error
	Pace(ctx context.Context)
	Download(ctx context.Context, dir string, timeout time.Duration, trigger func(context.Context) error) (string, error)
}

// waits are the SPA settle intervals between interactions. They exist as
// fields so tests can zero them.
type waits struct {
	nudge  time.Duration // small pause after modal clicks and scrolls
	settle time.Duration // after page advances and script-driven clicks
	expand time.Duration // card expansion animation
	export time.Duration // export control enable lag on large bulletins
}

func defaultWaits() waits {
	return waits{
		nudge:  time.Second,
		settle: 3 * time.Second,
		expand: 7 * time.Second,
		export: 10 * time.Second,
	}
}

const (
	defaultListingPageCap = 20
	defaultSearchPageCap  = 8
)

// Client holds one authenticated portal session.
type Client struct {
	drv  Driver
	cfg  config.PortalConfig
	dirs config.DownloadsConfig

	wait waits

	// bulletin is the number of the currently open bulletin, 0 when unknown.
	bulletin int
}

// NewClient wires a portal client over a started browser driver.
func NewClient(drv Driver, cfg config.PortalConfig, dirs config.DownloadsConfig) *Client {
	return &Client{drv: drv, cfg: cfg, dirs: dirs, wait: defaultWaits()}
}

// Bulletin returns the number of the bulletin currently open, 0 when unknown.
func (c *Client) Bulletin() int { return c.bulletin }

func (c *Client) listingPageCap() int {
	if c.cfg.ListingPageCap > 0 {
		return c.cfg.ListingPageCap
	}
	return defaultListingPageCap
}

func (c *Client) searchPageCap() int {
	if c.cfg.SearchPageCap > 0 {
		return c.cfg.SearchPageCap
	}
	return defaultSearchPageCap
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// xpathFirst returns a JS expression resolving an XPath query to its first
// matching element, for scripts that operate on a card node.
func xpathFirst(query string) string {
	return `document.evaluate(` + strconv.Quote(query) +
		`, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`
}
