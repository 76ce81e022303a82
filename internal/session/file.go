package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/model"
)

const fileExt = ".json"

// FileStore keeps one indented JSON document per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "session: create dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

// path maps name to its file, refusing names that would leave dir.
func (s *FileStore) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, Key(name)+fileExt)
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return "", eris.Wrapf(ErrInvalidName, "session: %q resolves outside %s", name, s.dir)
	}
	return path, nil
}

// Save writes the session and returns the file path.
func (s *FileStore) Save(_ context.Context, req SaveRequest) (string, error) {
	sess, err := build(req)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(sess, "", "    ")
	if err != nil {
		return "", eris.Wrap(err, "session: marshal")
	}

	path, err := s.path(req.Name)
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "session: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "session: rename %s", tmp)
	}

	zap.L().Info("session: saved", zap.String("name", req.Name), zap.String("path", path))
	return path, nil
}

// Load reads a session by name.
func (s *FileStore) Load(_ context.Context, name string) (*model.Session, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Name: name, Key: Key(name)}
		}
		return nil, eris.Wrapf(err, "session: read %s", path)
	}
	sess, err := decode(name, data)
	if err != nil {
		return nil, err
	}
	zap.L().Info("session: loaded",
		zap.String("name", sess.Meta.SessionName),
		zap.Time("saved_at", sess.Meta.Timestamp),
	)
	return sess, nil
}

// List returns the keys of the session files in the directory.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "session: list %s", s.dir)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), fileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
