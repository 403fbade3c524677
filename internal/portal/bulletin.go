package portal

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/model"
)

var (
	bulletinNumberPattern = regexp.MustCompile(`Boletim\s+(\d+)`)
	digitsPattern         = regexp.MustCompile(`\d+`)
)

// OpenBulletin navigates to the requested bulletin: by direct URL, by number
// through the dashboard calendar, or to the newest one when neither is set.
// It returns the bulletin number it landed on, 0 when it could not be told.
func (c *Client) OpenBulletin(ctx context.Context, b model.Bulletin) (int, error) {
	if b.URL != "" {
		if err := c.openBulletinURL(ctx, b.URL); err != nil {
			return 0, err
		}
		c.bulletin = b.Number
	} else {
		num, err := c.openBulletinFromCalendar(ctx, b.Number)
		if err != nil {
			return 0, err
		}
		c.bulletin = num
	}

	if err := c.confirmBulletinPage(ctx); err != nil {
		return 0, err
	}
	return c.bulletin, nil
}

// openBulletinURL loads a bulletin link (typically lifted from the trigger
// email). The portal bounces unauthenticated visits to the login page, so a
// redirect is handled by logging in and retrying once.
func (c *Client) openBulletinURL(ctx context.Context, url string) error {
	zap.L().Info("portal: opening bulletin by url", zap.String("url", url))
	if err := c.drv.Navigate(ctx, url); err != nil {
		return eris.Wrap(err, "portal: open bulletin url")
	}
	c.drv.Pace(ctx)

	loc, err := c.drv.Location(ctx)
	if err == nil && strings.Contains(strings.ToLower(loc), "login") {
		zap.L().Info("portal: bulletin url bounced to login, authenticating")
		if err := c.Login(ctx); err != nil {
			return err
		}
		if err := c.drv.Navigate(ctx, url); err != nil {
			return eris.Wrap(err, "portal: reopen bulletin url")
		}
		c.drv.Pace(ctx)
	}
	return nil
}

// openBulletinFromCalendar walks Dashboard → Visualizar → calendar and clicks
// the requested bulletin (or the highest-numbered one when number is 0).
func (c *Client) openBulletinFromCalendar(ctx context.Context, number int) (int, error) {
	c.dismissOverlays(ctx)

	if entry, ok := Resolve(ctx, c.drv, bulletinListEntry); ok {
		if err := c.drv.Click(ctx, entry.Query); err == nil {
			sleep(ctx, c.wait.settle)
		} else {
			zap.L().Warn("portal: visualizar click failed, trying calendar anyway", zap.Error(err))
		}
	}
	c.drv.Pace(ctx)

	links, count, ok := ResolvePresent(ctx, c.drv, bulletinLinks)
	if !ok {
		shot := filepath.Join(c.dirs.Dir, "debug_boletins_error.png")
		if err := c.drv.Screenshot(ctx, shot); err == nil {
			zap.L().Debug("portal: calendar state captured", zap.String("screenshot", shot))
		}
		return 0, eris.New("portal: no bulletin links found")
	}

	texts, err := c.drv.Texts(ctx, links.Query)
	if err != nil {
		return 0, eris.Wrap(err, "portal: read bulletin link texts")
	}
	for i, t := range texts {
		texts[i] = normalizeSpaces(t)
	}
	hrefs, err := c.drv.Attributes(ctx, links.Query, "href")
	if err != nil {
		return 0, eris.Wrap(err, "portal: read bulletin link hrefs")
	}

	idx, num := chooseBulletin(texts, hrefs, number)
	zap.L().Info("portal: opening bulletin",
		zap.Int("number", num),
		zap.String("entry", textAt(texts, idx)),
		zap.Int("candidates", count),
	)
	if err := c.drv.ClickNth(ctx, links.Query, idx); err != nil {
		return 0, eris.Wrap(err, "portal: click bulletin link")
	}
	sleep(ctx, c.wait.settle)
	c.drv.Pace(ctx)
	return num, nil
}

// chooseBulletin picks the calendar entry to open. With a requested number it
// matches "Boletim N" in the text or an href ending in "/N", falling back to
// the first entry; without one it picks the highest bulletin number seen.
// The returned number is 0 only when no entry carries a recognizable one.
func chooseBulletin(texts, hrefs []string, number int) (idx, num int) {
	if number > 0 {
		want := "boletim " + strconv.Itoa(number)
		suffix := "/" + strconv.Itoa(number)
		for i, t := range texts {
			if strings.Contains(strings.ToLower(t), want) || strings.HasSuffix(hrefAt(hrefs, i), suffix) {
				return i, number
			}
		}
		zap.L().Warn("portal: requested bulletin not in calendar, using first entry",
			zap.Int("number", number))
		return 0, number
	}

	idx, num = 0, 0
	for i, t := range texts {
		m := bulletinNumberPattern.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > num {
			idx, num = i, n
		}
	}
	return idx, num
}

// confirmBulletinPage verifies the bulletin page actually loaded, via the
// total header or the export control.
func (c *Client) confirmBulletinPage(ctx context.Context) error {
	if label, ok := Resolve(ctx, c.drv, totalLabel); ok {
		if text, err := c.drv.Text(ctx, label.Query); err == nil {
			zap.L().Info("portal: bulletin page open", zap.String("header", text))
		}
		return nil
	}
	if _, ok := Resolve(ctx, c.drv, exportControl); ok {
		zap.L().Info("portal: bulletin page open (export control present)")
		return nil
	}
	return eris.New("portal: bulletin page not confirmed")
}

// ExpectedTotal parses the record count from the bulletin header, 0 when the
// header is missing or unreadable.
func (c *Client) ExpectedTotal(ctx context.Context) int {
	label, ok := Resolve(ctx, c.drv, totalLabel)
	if !ok {
		return 0
	}
	text, err := c.drv.Text(ctx, label.Query)
	if err != nil {
		return 0
	}
	m := digitsPattern.FindString(text)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textAt(texts []string, i int) string {
	if i < 0 || i >= len(texts) {
		return ""
	}
	return texts[i]
}

func hrefAt(hrefs []string, i int) string {
	if i < 0 || i >= len(hrefs) {
		return ""
	}
	return hrefs[i]
}
