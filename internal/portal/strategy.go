package portal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Strategy is one concrete way to locate an element: a CSS query, or XPath
// when prefixed with "//" or "(".
type Strategy struct {
	Name  string
	Query string
}

// Target is a prioritized list of strategies for one logical element on the
// portal. The SPA re-renders its markup often, so every interaction resolves
// against a target instead of a single hardcoded query.
type Target struct {
	Name       string
	Timeout    time.Duration // per-strategy probe budget
	Strategies []Strategy
}

// Prober checks whether a query matches a visible element within a timeout.
// A miss is a normal outcome, never an error.
type Prober interface {
	Visible(ctx context.Context, query string, timeout time.Duration) bool
}

// Counter reports how many elements a query matches right now.
type Counter interface {
	Count(ctx context.Context, query string) (int, error)
}

// Resolve tries each strategy in order and returns the first whose query is
// visible. Misses are silent; an all-miss returns ok=false so callers decide
// whether the absence matters.
func Resolve(ctx context.Context, p Prober, t Target) (Strategy, bool) {
	for _, s := range t.Strategies {
		if ctx.Err() != nil {
			return Strategy{}, false
		}
		if p.Visible(ctx, s.Query, t.Timeout) {
			zap.L().Debug("portal: target resolved",
				zap.String("target", t.Name),
				zap.String("strategy", s.Name),
			)
			return s, true
		}
	}
	zap.L().Debug("portal: no strategy matched", zap.String("target", t.Name))
	return Strategy{}, false
}

// ResolvePresent tries each strategy in order and returns the first with at
// least one match in the DOM, along with the match count. Unlike Resolve it
// does not wait for visibility, which suits bulk queries over rendered lists.
func ResolvePresent(ctx context.Context, c Counter, t Target) (Strategy, int, bool) {
	for _, s := range t.Strategies {
		if ctx.Err() != nil {
			return Strategy{}, 0, false
		}
		n, err := c.Count(ctx, s.Query)
		if err != nil {
			zap.L().Debug("portal: count failed, trying next",
				zap.String("target", t.Name),
				zap.String("strategy", s.Name),
				zap.Error(err),
			)
			continue
		}
		if n > 0 {
			zap.L().Debug("portal: target resolved",
				zap.String("target", t.Name),
				zap.String("strategy", s.Name),
				zap.Int("matches", n),
			)
			return s, n, true
		}
	}
	zap.L().Debug("portal: no strategy matched", zap.String("target", t.Name))
	return Strategy{}, 0, false
}

// Scoped derives a target whose strategies are re-rooted under an XPath
// fragment, typically a record card. Scoped targets must be declared with
// XPath strategies so the queries concatenate.
func Scoped(rootXPath string, t Target) Target {
	out := Target{Name: t.Name, Timeout: t.Timeout, Strategies: make([]Strategy, len(t.Strategies))}
	for i, s := range t.Strategies {
		out.Strategies[i] = Strategy{Name: s.Name, Query: rootXPath + s.Query}
	}
	return out
}
