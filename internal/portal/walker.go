package portal

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/model"
)

// CollectNotices walks the bulletin listing page by page, parsing every
// rendered card. The walk stops when the expected total from the page header
// is reached, the page cap is hit, or no next-page control resolves. An empty
// page after a successful advance ends the walk without error; an empty
// first page is an error since the bulletin should have records.
func (c *Client) CollectNotices(ctx context.Context) ([]model.Notice, error) {
	expected := c.ExpectedTotal(ctx)
	if expected > 0 {
		zap.L().Info("portal: walking listing", zap.Int("expected", expected))
	}

	var notices []model.Notice
	for page := 1; page <= c.listingPageCap(); page++ {
		if err := ctx.Err(); err != nil {
			return notices, eris.Wrap(err, "portal: listing walk cancelled")
		}

		cards, ok := Resolve(ctx, c.drv, recordCards)
		if !ok {
			if page == 1 {
				return nil, eris.New("portal: no record cards on bulletin page")
			}
			zap.L().Warn("portal: no cards after page advance, ending walk", zap.Int("page", page))
			break
		}

		fragments, err := c.drv.HTML(ctx, cards.Query)
		if err != nil {
			return notices, eris.Wrapf(err, "portal: read cards on page %d", page)
		}

		parsed := 0
		for _, fragment := range fragments {
			n, ok := ParseCard(fragment)
			if !ok {
				continue
			}
			n.Bulletin = c.bulletin
			notices = append(notices, n)
			parsed++
		}
		zap.L().Info("portal: listing page walked",
			zap.Int("page", page),
			zap.Int("cards", len(fragments)),
			zap.Int("records", parsed),
			zap.String("strategy", cards.Name),
		)

		if expected > 0 && len(notices) >= expected {
			zap.L().Info("portal: expected total reached", zap.Int("records", len(notices)))
			break
		}

		if !c.advanceListing(ctx) {
			break
		}
	}

	return notices, nil
}

// advanceListing clicks the next-page control, false when none resolves.
func (c *Client) advanceListing(ctx context.Context) bool {
	next, ok := Resolve(ctx, c.drv, listingNext)
	if !ok {
		return false
	}
	if err := c.drv.Click(ctx, next.Query); err != nil {
		zap.L().Warn("portal: next page click failed", zap.Error(err))
		return false
	}
	sleep(ctx, c.wait.settle)
	c.drv.Pace(ctx)
	return true
}
