package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cwolfbr/indflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements it,
// which keeps the SQL layer testable without a live server.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

const postgresInsertNotice = `INSERT INTO licitacoes (
	id, numero_edital, numero_conlicitacao, objeto, orgao, cidade_uf,
	data_abertura, valor_estimado, modalidade, status_licitacao,
	palavras_chave, numero_boletim, aderencia, recomendacao, resumo_ia,
	analise_completa, arquivo_edital_path, processado_em
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const postgresStats = `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN aderencia = 'ALTA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN aderencia = 'MEDIA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN aderencia = 'BAIXA' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'PARTICIPAR' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'ACOMPANHAR' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN recomendacao = 'DESCARTAR' THEN 1 ELSE 0 END), 0)
FROM licitacoes
WHERE processado_em >= $1`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_notice":    postgresInsertNotice,
	"exists_by_portal": `SELECT 1 FROM licitacoes WHERE numero_conlicitacao = $1 LIMIT 1`,
	"exists_by_edital": `SELECT 1 FROM licitacoes WHERE numero_edital = $1 LIMIT 1`,
	"insert_run":       `INSERT INTO runs (id, bulletin, status, result, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// One nightly bulletin run plus the occasional stats query; a small
	// pool is plenty.
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS licitacoes (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	analise_completa    JSONB,
	arquivo_edital_path TEXT,
	processado_em       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	bulletin   INTEGER,
	status     TEXT NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_licitacoes_portal_id ON licitacoes(numero_conlicitacao);
CREATE INDEX IF NOT EXISTS idx_licitacoes_edital ON licitacoes(numero_edital);
CREATE INDEX IF NOT EXISTS idx_licitacoes_aderencia ON licitacoes(aderencia);
CREATE INDEX IF NOT EXISTS idx_licitacoes_processado_em ON licitacoes(processado_em);
CREATE INDEX IF NOT EXISTS idx_runs_bulletin ON runs(bulletin);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveNotice(ctx context.Context, n *model.Notice) error {
	args, err := noticeRow(uuid.New().String(), n, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, postgresInsertNotice, args...); err != nil {
		return eris.Wrapf(err, "postgres: insert notice %s", n.Ref())
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, editalRef, portalID string) (bool, error) {
	var query, key string
	switch {
	case portalID != "":
		query, key = `SELECT 1 FROM licitacoes WHERE numero_conlicitacao = $1 LIMIT 1`, portalID
	case editalRef != "":
		query, key = `SELECT 1 FROM licitacoes WHERE numero_edital = $1 LIMIT 1`, editalRef
	default:
		return false, nil
	}

	var one int
	err := s.pool.QueryRow(ctx, query, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check duplicate")
	}
	return true, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, result *model.RunResult) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	status := runStatus(result)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, bulletin, status, result, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, nullableInt(result.Bulletin), string(status), resultJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) Stats(ctx context.Context, days int) (*model.StoreStats, error) {
	var st model.StoreStats
	err := s.pool.QueryRow(ctx, postgresStats, statsCutoff(days)).Scan(
		&st.Total, &st.High, &st.Medium, &st.Low,
		&st.Participate, &st.Watch, &st.Discard,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}
