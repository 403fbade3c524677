// Package browser drives a Chrome instance over the DevTools protocol. It
// exposes the small operation set the portal flows need, every call bounded
// by a per-operation timeout and the caller's context.
package browser

import (
	"context"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Options configures a Session.
type Options struct {
	Headless      bool
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	NavTimeout    time.Duration
	ActionTimeout time.Duration
	DelayMin      time.Duration
	DelayMax      time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1366
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 768
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 60 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 10 * time.Second
	}
	if o.DelayMin <= 0 {
		o.DelayMin = 2 * time.Second
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = o.DelayMin + 3*time.Second
	}
	return o
}

// Session owns one exclusive Chrome instance. It is created by NewSession,
// brought up by Start and torn down by Close; collaborators receive the
// handle explicitly.
type Session struct {
	opts          Options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewSession prepares a session with the given options. The browser process
// is not launched until Start.
func NewSession(opts Options) *Session {
	return &Session{opts: opts.withDefaults()}
}

// Start launches Chrome and applies the pt-BR environment the portal
// expects. The session outlives ctx; ctx only bounds the launch itself.
func (s *Session) Start(ctx context.Context) error {
	if s.browserCtx != nil {
		return eris.New("browser: session already started")
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "pt-BR"),
		chromedp.WindowSize(s.opts.WindowWidth, s.opts.WindowHeight),
		chromedp.UserAgent(s.opts.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel

	err := s.run(ctx, s.opts.NavTimeout,
		network.Enable(),
		emulation.SetLocaleOverride().WithLocale("pt-BR"),
		emulation.SetTimezoneOverride("America/Sao_Paulo"),
	)
	if err != nil {
		s.Close()
		return eris.Wrap(err, "browser: start chrome")
	}

	zap.L().Info("browser session started", zap.Bool("headless", s.opts.Headless))
	return nil
}

// Close tears down the browser and its allocator. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		zap.L().Info("browser session closed")
	})
}

// run executes chromedp actions bounded by both the operation timeout and
// the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.browserCtx == nil {
		return eris.New("browser: session not started")
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.opts.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

// Visible probes whether an element matching query becomes visible within
// timeout. A miss is a normal outcome, never an error.
func (s *Session) Visible(ctx context.Context, query string, timeout time.Duration) bool {
	return s.run(ctx, timeout, chromedp.WaitVisible(query, queryOpts(query)...)) == nil
}

// Click clicks the first visible element matching query.
func (s *Session) Click(ctx context.Context, query string) error {
	opts := append(queryOpts(query), chromedp.NodeVisible)
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Click(query, opts...)); err != nil {
		return eris.Wrapf(err, "browser: click %s", query)
	}
	return nil
}

// ClickNth clicks the idx-th (0-based) element matching query. The portal
// calendar renders many look-alike links, so callers pick by index after
// inspecting texts and hrefs.
func (s *Session) ClickNth(ctx context.Context, query string, idx int) error {
	err := s.run(ctx, s.opts.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(query, &nodes, queryOpts(query)...).Do(ctx); err != nil {
			return err
		}
		if idx < 0 || idx >= len(nodes) {
			return eris.Errorf("index %d out of %d matches", idx, len(nodes))
		}
		return chromedp.MouseClickNode(nodes[idx]).Do(ctx)
	}))
	if err != nil {
		return eris.Wrapf(err, "browser: click #%d of %s", idx, query)
	}
	return nil
}

// ClickAt dispatches a raw mouse click at viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.MouseClickXY(x, y)); err != nil {
		return eris.Wrapf(err, "browser: click at (%.0f, %.0f)", x, y)
	}
	return nil
}

// Fill clears the field matching query and types value into it.
func (s *Session) Fill(ctx context.Context, query, value string) error {
	opts := append(queryOpts(query), chromedp.NodeVisible)
	err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.Clear(query, opts...),
		chromedp.SendKeys(query, value, opts...),
	)
	if err != nil {
		return eris.Wrapf(err, "browser: fill %s", query)
	}
	return nil
}

// Text returns the trimmed text content of the first element matching query.
func (s *Session) Text(ctx context.Context, query string) (string, error) {
	var out string
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Text(query, &out, queryOpts(query)...)); err != nil {
		return "", eris.Wrapf(err, "browser: text %s", query)
	}
	return strings.TrimSpace(out), nil
}

// Texts returns the trimmed text content of every element matching query.
func (s *Session) Texts(ctx context.Context, query string) ([]string, error) {
	var out []string
	expr := selectAllScript + "(" + strconv.Quote(query) + ").map(e => e.textContent.trim())"
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, eris.Wrapf(err, "browser: texts %s", query)
	}
	return out, nil
}

// Attributes returns the named attribute of every element matching query,
// empty string for elements that lack it.
func (s *Session) Attributes(ctx context.Context, query, attr string) ([]string, error) {
	var out []string
	expr := selectAllScript + "(" + strconv.Quote(query) + ").map(e => e.getAttribute(" + strconv.Quote(attr) + ") || '')"
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, eris.Wrapf(err, "browser: attributes %s", query)
	}
	return out, nil
}

// Count returns how many elements match query right now.
func (s *Session) Count(ctx context.Context, query string) (int, error) {
	var n int
	expr := selectAllScript + "(" + strconv.Quote(query) + ").length"
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, eris.Wrapf(err, "browser: count %s", query)
	}
	return n, nil
}

// HTML returns the outer HTML of every element matching query. An empty
// result is not an error.
func (s *Session) HTML(ctx context.Context, query string) ([]string, error) {
	var out []string
	err := s.run(ctx, s.opts.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		opts := append(queryOpts(query), chromedp.AtLeast(0))
		if err := chromedp.Nodes(query, &nodes, opts...).Do(ctx); err != nil {
			return err
		}
		for _, n := range nodes {
			html, err := dom.GetOuterHTML().WithNodeID(n.NodeID).Do(ctx)
			if err != nil {
				return err
			}
			out = append(out, html)
		}
		return nil
	}))
	if err != nil {
		return nil, eris.Wrapf(err, "browser: outer html %s", query)
	}
	return out, nil
}

// Eval runs a JavaScript expression in the page. out may be nil when the
// result is not needed.
func (s *Session) Eval(ctx context.Context, expr string, out any) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(expr, out)); err != nil {
		return eris.Wrap(err, "browser: evaluate")
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", eris.Wrap(err, "browser: location")
	}
	return url, nil
}

// ScrollIntoView scrolls the first element matching query into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, query string) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.ScrollIntoView(query, queryOpts(query)...)); err != nil {
		return eris.Wrapf(err, "browser: scroll to %s", query)
	}
	return nil
}

// PressEscape sends the Escape key to the page, dismissing portal modals.
func (s *Session) PressEscape(ctx context.Context) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.KeyEvent(kb.Escape)); err != nil {
		return eris.Wrap(err, "browser: press escape")
	}
	return nil
}

// Screenshot captures the viewport to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return eris.Wrap(err, "browser: capture screenshot")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrap(err, "browser: write screenshot")
	}
	return nil
}

// Pace sleeps a uniformly random human-like interval, or returns early when
// ctx is cancelled.
func (s *Session) Pace(ctx context.Context) {
	d := s.opts.DelayMin
	if span := s.opts.DelayMax - s.opts.DelayMin; span > 0 {
		d += rand.N(span)
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// selectAllScript resolves a CSS or XPath query to an element array in the
// page, mirroring queryOpts' prefix convention.
const selectAllScript = `(q => {
	const out = [];
	if (q.startsWith('//') || q.startsWith('(')) {
		const r = document.evaluate(q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
	} else {
		document.querySelectorAll(q).forEach(e => out.push(e));
	}
	return out;
})`

// isXPath reports whether a query should be treated as XPath rather than
// CSS: queries starting with "//" or "(".
func isXPath(query string) bool {
	return strings.HasPrefix(query, "//") || strings.HasPrefix(query, "(")
}

func queryOpts(query string) []chromedp.QueryOption {
	if isXPath(query) {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQueryAll}
}
