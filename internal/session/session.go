// Package session persists audit sessions: the query parameters, the area
// snapshot and the compliance report of one analysis, under a user-chosen name.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/gis-compliance/internal/model"
)

// ErrNotFound is matched by errors.Is when a named session does not exist.
var ErrNotFound = errors.New("session: not found")

// NotFoundError reports a missing session.
type NotFoundError struct {
	Name string
	Key  string
}

func (e *NotFoundError) Error() string {
	return "session: " + e.Name + " not found (key " + e.Key + ")"
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ErrInvalidName is matched by errors.Is when a session name cannot be used
// as a storage key.
var ErrInvalidName = errors.New("session: invalid name")

// ValidateName rejects empty names and names whose key could address
// anything outside the store: path separators, "..", and NUL bytes.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return eris.Wrap(ErrInvalidName, "session: name is required")
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return eris.Wrapf(ErrInvalidName, "session: name %q may not contain path separators or \"..\"", name)
	}
	return nil
}

// Tabular is a result set that can be flattened to ordered attribute rows.
type Tabular interface {
	Records() []map[string]any
}

// Rows adapts already-flattened rows to Tabular.
type Rows []map[string]any

// Records implements Tabular.
func (r Rows) Records() []map[string]any { return r }

// SaveRequest is the state captured by Save.
type SaveRequest struct {
	Name       string
	Parameters map[string]any
	Results    Tabular
	Report     any
	User       string
}

// Store saves and restores sessions.
type Store interface {
	// Save persists the session and returns its storage identifier.
	Save(ctx context.Context, req SaveRequest) (string, error)
	Load(ctx context.Context, name string) (*model.Session, error)
	// List returns the stored session keys, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

var lower = cases.Lower(language.Und)

// Key is the storage key of a session name: spaces become underscores and
// the result is lower-cased.
func Key(name string) string {
	return lower.String(strings.ReplaceAll(name, " ", "_"))
}

// now is replaced in tests.
var now = time.Now

// build assembles the persisted form of req.
func build(req SaveRequest) (*model.Session, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}

	var report json.RawMessage
	if req.Report != nil {
		data, err := json.Marshal(req.Report)
		if err != nil {
			return nil, eris.Wrap(err, "session: marshal report")
		}
		report = data
	}

	snapshot := []map[string]any{}
	if req.Results != nil {
		if rows := req.Results.Records(); rows != nil {
			snapshot = rows
		}
	}

	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}

	return &model.Session{
		Meta: model.SessionMeta{
			SessionName: req.Name,
			CreatedBy:   req.User,
			Timestamp:   now(),
			Version:     model.SessionVersion,
		},
		Parameters:         params,
		ComplianceReport:   report,
		GISResultsSnapshot: snapshot,
	}, nil
}

func decode(name string, data []byte) (*model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "session: decode %s", name)
	}
	return &s, nil
}

func marshalSession(s *model.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "session: marshal")
	}
	return data, nil
}
