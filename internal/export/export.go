// Package export renders compliance reports as JSON, YAML or XLSX.
package export

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gis-compliance/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts json, yaml/yml and xlsx, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unknown format %q (want json, yaml or xlsx)", s)
	}
}

// Write encodes report to w. XLSX needs a file path; use WriteXLSX.
func Write(w io.Writer, report *model.ComplianceReport, format Format) error {
	if report == nil {
		return eris.New("export: nil report")
	}
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "export: encode yaml")
		}
		return eris.Wrap(enc.Close(), "export: close yaml encoder")
	case FormatXLSX:
		return eris.New("export: xlsx output requires a file path")
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return eris.Wrap(enc.Encode(v), "export: encode json")
}
