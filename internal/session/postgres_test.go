package session

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO sessions.*ON CONFLICT \(session_key\) DO UPDATE.*RETURNING id`).
		WithArgs(pgxmock.AnyArg(), "texas_lease_audit_2024", "Texas Lease Audit 2024", "analyst@energy-corp.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("sess-1"))

	id, err := s.Save(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	payload := []byte(`{"meta":{"session_name":"Texas Lease Audit 2024","created_by":"analyst","timestamp":"2024-05-01T12:30:00Z","version":"1.0"},
		"parameters":{"layer":"counties_2024"},"compliance_report":{"error":"could not find file: x.geojson"},"gis_results_snapshot":[]}`)
	mock.ExpectQuery(`SELECT payload FROM sessions WHERE session_key = \$1`).
		WithArgs("texas_lease_audit_2024").
		WillReturnRows(mock.NewRows([]string{"payload"}).AddRow(payload))

	sess, err := s.Load(context.Background(), "Texas Lease Audit 2024")
	require.NoError(t, err)
	assert.Equal(t, "analyst", sess.Meta.CreatedBy)
	assert.Equal(t, "counties_2024", sess.Parameters["layer"])

	report, err := sess.Report()
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM sessions`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Load(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM sessions`).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	_, err := s.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "postgres: load session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT session_key FROM sessions ORDER BY session_key`).
		WillReturnRows(mock.NewRows([]string{"session_key"}).AddRow("austin_review").AddRow("texas_lease_audit_2024"))

	keys, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"austin_review", "texas_lease_audit_2024"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
