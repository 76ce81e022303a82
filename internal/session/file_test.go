package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	st, err := NewFileStore(filepath.Join(t.TempDir(), "saved_sessions"))
	require.NoError(t, err)
	exerciseStore(t, st)
}

func TestFileStore_Layout(t *testing.T) {
	freezeClock(t)
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	path, err := st.Save(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "texas_lease_audit_2024.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"meta\": {")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, k := range []string{"meta", "parameters", "compliance_report", "gis_results_snapshot"} {
		assert.Contains(t, doc, k)
	}
	meta := doc["meta"].(map[string]any)
	assert.Equal(t, "1.0", meta["version"])
	assert.Equal(t, "2024-05-01T12:30:00Z", meta["timestamp"])
}

func TestFileStore_ListIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manual.json"), []byte("{}"), 0o644))

	keys, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"manual"}, keys)
}

func TestFileStore_CorruptSession(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err = st.Load(context.Background(), "Broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "decode")
}

func TestFileStore_RejectsNamesOutsideDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sessions")
	st, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"../../escaped", "../escaped", "nested/escaped", `..\escaped`, ".."} {
		t.Run(name, func(t *testing.T) {
			_, err := st.Save(ctx, SaveRequest{Name: name})
			assert.ErrorIs(t, err, ErrInvalidName)

			_, err = st.Load(ctx, name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}

	assert.NoFileExists(t, filepath.Join(root, "escaped.json"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escaped.json"))
	keys, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
