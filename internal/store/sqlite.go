package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cwolfbr/indflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Column names follow the original licitacoes contract so the IndFlow
// dashboard keeps reading the table unchanged.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS licitacoes (
	id                  TEXT PRIMARY KEY,
	numero_edital       TEXT,
	numero_conlicitacao TEXT,
	objeto              TEXT,
	orgao               TEXT,
	cidade_uf           TEXT,
	data_abertura       TEXT,
	valor_estimado      TEXT,
	modalidade          TEXT,
	status_licitacao    TEXT,
	palavras_chave      TEXT,
	numero_boletim      INTEGER,
	aderencia           TEXT,
	recomendacao        TEXT,
	resumo_ia           TEXT,
	analise_completa    TEXT,
	arquivo_edital_path TEXT,
	processado_em       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	bulletin   INTEGER,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_licitacoes_portal_id ON licitacoes(numero_conlicitacao);
CREATE INDEX IF NOT EXISTS idx_licitacoes_edital ON licitacoes(numero_edital);
CREATE INDEX IF NOT EXISTS idx_licitacoes_aderencia ON licitacoes(aderencia);
CREATE INDEX IF NOT EXISTS idx_licitacoes_processado_em ON licitacoes(processado_em);
CREATE INDEX IF NOT EXISTS idx_runs_bulletin ON runs(bulletin);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

const sqliteInsertNotice = `INSERT INTO licitacoes (
	id, numero_edital, numero_conlicitacao, objeto, orgao, cidade_uf,
	data_abertura, valor_estimado, modalidade, status_licitacao,
	palavras_chave, numero_boletim, aderencia, recomendacao, resumo_ia,
	analise_completa, arquivo_edital_path, processado_em
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqliteStats = `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN aderencia = 'ALTA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN aderencia = 'MEDIA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN aderencia = 'BAIXA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'PARTICIPAR' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'ACOMPANHAR' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'DESCARTAR' THEN 1 ELSE 0 END), 0)
FROM licitacoes
WHERE processado_em >= ?`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveNotice(ctx context.Context, n *model.Notice) error {
	args, err := noticeRow(uuid.New().String(), n, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertNotice, args...); err != nil {
		return eris.Wrapf(err, "sqlite: insert notice %s", n.Ref())
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, editalRef, portalID string) (bool, error) {
	var query, key string
	switch {
	case portalID != "":
		query, key = `SELECT 1 FROM licitacoes WHERE numero_conlicitacao = ? LIMIT 1`, portalID
	case editalRef != "":
		query, key = `SELECT 1 FROM licitacoes WHERE numero_edital = ? LIMIT 1`, editalRef
	default:
		return false, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx, query, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check duplicate")
	}
	return true, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.RunResult) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	status := runStatus(result)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, bulletin, status, result, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, nullableInt(result.Bulletin), string(status), string(resultJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Bulletin:  result.Bulletin,
		Status:    status,
		Result:    result,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, days int) (*model.StoreStats, error) {
	var st model.StoreStats
	err := s.db.QueryRowContext(ctx, sqliteStats, statsCutoff(days)).Scan(
		&st.Total, &st.High, &st.Medium, &st.Low,
		&st.Participate, &st.Watch, &st.Discard,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}
