package model

import "encoding/json"

// RegionAreaRecord is the area of one feature after projection. Geometry is
// not carried past this point.
type RegionAreaRecord struct {
	Name     string  `json:"name" yaml:"name"`
	AreaSqMi float64 `json:"area_sqmi" yaml:"area_sqmi"`
}

// RegionAreaRecords is the tabular result of an area computation.
type RegionAreaRecords []RegionAreaRecord

// Records flattens the table into one attribute mapping per row.
func (r RegionAreaRecords) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r))
	for _, rec := range r {
		out = append(out, map[string]any{
			"name":      rec.Name,
			"area_sqmi": rec.AreaSqMi,
		})
	}
	return out
}

// ComplianceRecord describes one region that falls short of the minimum area.
// AreaSqMi and ShortfallSqMi are rounded for presentation; the Exact fields
// keep the unrounded values used for classification.
type ComplianceRecord struct {
	Name           string  `json:"name" yaml:"name"`
	AreaSqMi       float64 `json:"area_sqmi" yaml:"area_sqmi"`
	RequiredSqMi   float64 `json:"required_sqmi" yaml:"required_sqmi"`
	ShortfallSqMi  float64 `json:"shortfall_sqmi" yaml:"shortfall_sqmi"`
	Recommendation string  `json:"recommendation" yaml:"recommendation"`
	IsCompliant    bool    `json:"is_compliant" yaml:"is_compliant"`

	ExactAreaSqMi      float64 `json:"-" yaml:"-"`
	ExactShortfallSqMi float64 `json:"-" yaml:"-"`
}

// ReportMeta identifies a report and the rule it applied.
type ReportMeta struct {
	ReportType string `json:"report_type" yaml:"report_type"`
	SourceFile string `json:"source_file" yaml:"source_file"`
	Rule       string `json:"rule" yaml:"rule"`
}

// ReportStatistics holds the report counts.
type ReportStatistics struct {
	TotalFeaturesChecked int `json:"total_features_checked" yaml:"total_features_checked"`
	NonCompliantCount    int `json:"non_compliant_count" yaml:"non_compliant_count"`
}

// ComplianceReport is the output of a compliance evaluation. A report built
// from a failed input carries only Error.
type ComplianceReport struct {
	Meta                ReportMeta         `json:"meta" yaml:"meta"`
	Statistics          ReportStatistics   `json:"statistics" yaml:"statistics"`
	NonCompliantRegions []ComplianceRecord `json:"non_compliant_regions" yaml:"non_compliant_regions"`

	Error string `json:"-" yaml:"-"`
}

// ErrorReport returns the error-shaped report for msg.
func ErrorReport(msg string) *ComplianceReport {
	return &ComplianceReport{Error: msg}
}

// Failed reports whether this is an error-shaped report.
func (r *ComplianceReport) Failed() bool {
	return r.Error != ""
}

type errorPayload struct {
	Error string `json:"error" yaml:"error"`
}

type complianceReportAlias ComplianceReport

// MarshalJSON writes {"error": ...} for failed reports and the full report
// otherwise.
func (r ComplianceReport) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(errorPayload{Error: r.Error})
	}
	alias := complianceReportAlias(r)
	if alias.NonCompliantRegions == nil {
		alias.NonCompliantRegions = []ComplianceRecord{}
	}
	return json.Marshal(alias)
}

// UnmarshalJSON accepts both the full and the error-shaped form.
func (r *ComplianceReport) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		*r = ComplianceReport{Error: *probe.Error}
		return nil
	}
	var alias complianceReportAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*r = ComplianceReport(alias)
	return nil
}

// MarshalYAML mirrors MarshalJSON for YAML output.
func (r ComplianceReport) MarshalYAML() (any, error) {
	if r.Error != "" {
		return errorPayload{Error: r.Error}, nil
	}
	alias := complianceReportAlias(r)
	if alias.NonCompliantRegions == nil {
		alias.NonCompliantRegions = []ComplianceRecord{}
	}
	return alias, nil
}
