package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gis-compliance/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

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
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_key TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	created_by  TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions(created_by);
`

// Migrate creates the sessions table.
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

// Save upserts the session by key and returns its row id.
func (s *PostgresStore) Save(ctx context.Context, req SaveRequest) (string, error) {
	sess, err := build(req)
	if err != nil {
		return "", err
	}
	payload, err := marshalSession(sess)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, session_key, name, created_by, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (session_key) DO UPDATE SET
		   name = EXCLUDED.name, created_by = EXCLUDED.created_by,
		   payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		uuid.New().String(), Key(req.Name), req.Name, req.User, payload, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: save session %s", req.Name)
	}
	return id, nil
}

func (s *PostgresStore) Load(ctx context.Context, name string) (*model.Session, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM sessions WHERE session_key = $1`, Key(name),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Name: name, Key: Key(name)}
		}
		return nil, eris.Wrapf(err, "postgres: load session %s", name)
	}
	return decode(name, payload)
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT session_key FROM sessions ORDER BY session_key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}
