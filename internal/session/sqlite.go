package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gis-compliance/internal/model"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	session_key TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	created_by  TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions(created_by);
`

// Migrate creates the sessions table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the session by key and returns its row id.
func (s *SQLiteStore) Save(ctx context.Context, req SaveRequest) (string, error) {
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
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, session_key, name, created_by, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   name = excluded.name, created_by = excluded.created_by,
		   payload = excluded.payload, updated_at = excluded.updated_at
		 RETURNING id`,
		uuid.New().String(), Key(req.Name), req.Name, req.User, string(payload), now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: save session %s", req.Name)
	}
	return id, nil
}

func (s *SQLiteStore) Load(ctx context.Context, name string) (*model.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE session_key = ?`, Key(name),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Name: name, Key: Key(name)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load session %s", name)
	}
	return decode(name, []byte(payload))
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_key FROM sessions ORDER BY session_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}
