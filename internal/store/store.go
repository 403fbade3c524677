// Package store persists classified notices and run history. Both backends
// share the same schema shape: SQLite for single-host deployments, Postgres
// when the data is shared with the IndFlow dashboard.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cwolfbr/indflow/internal/config"
	"github.com/cwolfbr/indflow/internal/model"
)

// DefaultStatsWindowDays bounds the stats query when the caller passes no
// window of its own.
const DefaultStatsWindowDays = 30

// Store defines the persistence interface for the bulletin pipeline.
type Store interface {
	// SaveNotice inserts one classified notice. Empty fields are stored
	// as NULL, never as empty strings.
	SaveNotice(ctx context.Context, n *model.Notice) error

	// Exists reports whether a notice was already persisted. The internal
	// portal ID is checked first; the edital reference is consulted only
	// when no portal ID is known. Both empty can never be a duplicate.
	Exists(ctx context.Context, editalRef, portalID string) (bool, error)

	// SaveRun appends one run to the history with its JSON result.
	SaveRun(ctx context.Context, result *model.RunResult) (*model.Run, error)

	// Stats summarizes persisted notices by tier and recommendation over
	// the trailing window. days <= 0 uses DefaultStatsWindowDays.
	Stats(ctx context.Context, days int) (*model.StoreStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the backend selected by the configured driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// noticeRow flattens a notice into the column order shared by both
// backends' INSERT statements.
func noticeRow(id string, n *model.Notice, now time.Time) ([]any, error) {
	var analysisJSON any
	if n.Analysis != nil {
		b, err := json.Marshal(n.Analysis)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal analysis %s", n.Ref())
		}
		analysisJSON = string(b)
	}
	return []any{
		id,
		nullable(n.EditalRef),
		nullable(n.PortalID),
		nullable(n.Object),
		nullable(n.Organ),
		nullable(n.CityState()),
		nullable(n.OpeningDate),
		nullable(n.Value),
		nullable(n.Modality),
		nullable(n.Status),
		nullable(n.Keywords),
		nullableInt(n.Bulletin),
		nullable(string(n.Tier)),
		nullable(string(n.Recommendation)),
		nullable(n.Summary),
		analysisJSON,
		nullable(n.DocumentPath),
		now,
	}, nil
}

// nullable maps the zero string to NULL so a row never stores "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// runStatus derives the terminal run status from the result.
func runStatus(r *model.RunResult) model.RunStatus {
	if r.Success {
		return model.RunStatusComplete
	}
	return model.RunStatusFailed
}

func statsCutoff(days int) time.Time {
	if days <= 0 {
		days = DefaultStatsWindowDays
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}
