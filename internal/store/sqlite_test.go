package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwolfbr/indflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNewSQLite_InvalidPath(t *testing.T) {
	// A path under a nonexistent parent cannot be created.
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestNewSQLite_EnablesWAL(t *testing.T) {
	st := newTestSQLiteStore(t)

	var mode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in the helper; a second pass must be a no-op.
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveNotice_EmptyFieldsStoredAsNull(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n := &model.Notice{
		PortalID: "30500",
		Object:   "Aquisição de rotâmetros industriais",
		Tier:     model.TierLow,
	}
	require.NoError(t, st.SaveNotice(ctx, n))

	var edital, organ, value, rec, analysis, docPath sql.NullString
	var object string
	err := st.db.QueryRow(
		`SELECT numero_edital, orgao, valor_estimado, recomendacao,
		        analise_completa, arquivo_edital_path, objeto
		 FROM licitacoes WHERE numero_conlicitacao = ?`,
		"30500",
	).Scan(&edital, &organ, &value, &rec, &analysis, &docPath, &object)
	require.NoError(t, err)

	assert.False(t, edital.Valid)
	assert.False(t, organ.Valid)
	assert.False(t, value.Valid)
	assert.False(t, rec.Valid)
	assert.False(t, analysis.Valid)
	assert.False(t, docPath.Valid)
	assert.Equal(t, "Aquisição de rotâmetros industriais", object)
}

func TestSQLite_SaveNotice_PersistsAnalysisJSON(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n := sampleNotice()
	n.Analysis = &model.Analysis{
		ExecutiveSummary: "Fornecimento de 40 medidores eletromagnéticos DN50-DN200.",
		RelevantItems:    []string{"medidor eletromagnético", "transmissor de vazão"},
		Deadlines:        model.Deadlines{Opening: "10/09/2026"},
		Tier:             model.TierHigh,
		Recommendation:   model.RecommendParticipate,
	}
	require.NoError(t, st.SaveNotice(ctx, n))

	var raw string
	err := st.db.QueryRow(
		`SELECT analise_completa FROM licitacoes WHERE numero_conlicitacao = ?`,
		"30123",
	).Scan(&raw)
	require.NoError(t, err)

	var got model.Analysis
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, "Fornecimento de 40 medidores eletromagnéticos DN50-DN200.", got.ExecutiveSummary)
	assert.Equal(t, model.TierHigh, got.Tier)
	assert.Len(t, got.RelevantItems, 2)
}

func TestSQLite_SaveNotice_CityStateJoined(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveNotice(ctx, &model.Notice{
		PortalID: "1", Object: "a", City: "Curitiba", State: "PR",
	}))
	require.NoError(t, st.SaveNotice(ctx, &model.Notice{
		PortalID: "2", Object: "b", City: "Brasília",
	}))

	var withState, cityOnly string
	require.NoError(t, st.db.QueryRow(
		`SELECT cidade_uf FROM licitacoes WHERE numero_conlicitacao = '1'`).Scan(&withState))
	require.NoError(t, st.db.QueryRow(
		`SELECT cidade_uf FROM licitacoes WHERE numero_conlicitacao = '2'`).Scan(&cityOnly))

	assert.Equal(t, "Curitiba/PR", withState)
	assert.Equal(t, "Brasília", cityOnly)
}

func TestSQLite_SaveRun_PersistsResultJSON(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	result := &model.RunResult{
		Success:        true,
		Bulletin:       1234,
		TotalNotices:   20,
		DocsDownloaded: 4,
		Errors:         []string{},
	}
	run, err := st.SaveRun(ctx, result)
	require.NoError(t, err)

	var status, raw string
	err = st.db.QueryRow(`SELECT status, result FROM runs WHERE id = ?`, run.ID).
		Scan(&status, &raw)
	require.NoError(t, err)
	assert.Equal(t, "complete", status)

	var got model.RunResult
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, 1234, got.Bulletin)
	assert.Equal(t, 4, got.DocsDownloaded)
}

func TestSQLite_Stats_WindowExcludesOldRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveNotice(ctx, &model.Notice{
		PortalID: "1", Object: "medidor ultrassônico", Tier: model.TierHigh,
	}))
	insertNoticeAt(t, st, model.TierHigh, time.Now().UTC().AddDate(0, 0, -40))

	recent, err := st.Stats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, recent.Total)

	wide, err := st.Stats(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, wide.Total)
}

func TestSQLite_Stats_DefaultWindow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	insertNoticeAt(t, st, model.TierMedium, time.Now().UTC().AddDate(0, 0, -5))
	insertNoticeAt(t, st, model.TierMedium, time.Now().UTC().AddDate(0, 0, -40))

	// days <= 0 falls back to the 30-day default.
	st30, err := st.Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, st30.Total)
	assert.Equal(t, 1, st30.Medium)
}

// insertNoticeAt writes a minimal row with an explicit timestamp, which
// SaveNotice never exposes.
func insertNoticeAt(t *testing.T, st *SQLiteStore, tier model.Tier, at time.Time) {
	t.Helper()
	_, err := st.db.Exec(
		`INSERT INTO licitacoes (id, objeto, aderencia, processado_em) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), "registro antigo", string(tier), at,
	)
	require.NoError(t, err)
}
