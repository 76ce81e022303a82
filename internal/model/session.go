package model

import (
	"encoding/json"
	"time"
)

// SessionVersion is the schema version written into saved sessions.
const SessionVersion = "1.0"

// SessionMeta describes who saved a session and when.
type SessionMeta struct {
	SessionName string    `json:"session_name"`
	CreatedBy   string    `json:"created_by"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
}

// Session is a saved analysis: the query that produced it, the compliance
// report, and a flat snapshot of the tabular results.
type Session struct {
	Meta               SessionMeta      `json:"meta"`
	Parameters         map[string]any   `json:"parameters"`
	ComplianceReport   json.RawMessage  `json:"compliance_report"`
	GISResultsSnapshot []map[string]any `json:"gis_results_snapshot"`
}

// Report decodes the stored compliance report.
func (s *Session) Report() (*ComplianceReport, error) {
	if len(s.ComplianceReport) == 0 || string(s.ComplianceReport) == "null" {
		return nil, nil
	}
	var r ComplianceReport
	if err := json.Unmarshal(s.ComplianceReport, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
