// Package compliance evaluates region areas against a minimum-area rule and
// builds the ranked report of regions that fall short.
package compliance

import (
	"math"
	"slices"
	"strconv"

	"github.com/sells-group/gis-compliance/internal/model"
)

// ReportType is the default report_type of a compliance report.
const ReportType = "GIS Compliance Check"

// DefaultThresholdSqMi is the minimum area applied when none is configured.
const DefaultThresholdSqMi = 2500.0

// Recommendation tiers, from most to least severe.
const (
	RecommendCritical = "CRITICAL: Requires major consolidation."
	RecommendWarning  = "WARNING: Seek waiver or combine with neighbor."
	RecommendNotice   = "NOTICE: Minor boundary adjustment required."
)

const (
	criticalShortfall = 2000.0
	warningShortfall  = 1000.0
)

type options struct {
	source     string
	reportType string
}

// Option customizes report metadata.
type Option func(*options)

// WithSource sets meta.source_file.
func WithSource(source string) Option {
	return func(o *options) { o.source = source }
}

// WithReportType overrides meta.report_type.
func WithReportType(reportType string) Option {
	return func(o *options) { o.reportType = reportType }
}

// Recommend returns the advice for a shortfall. Comparisons are strict, so a
// shortfall of exactly 2000 or 1000 falls to the next lower tier.
func Recommend(shortfall float64) string {
	switch {
	case shortfall > criticalShortfall:
		return RecommendCritical
	case shortfall > warningShortfall:
		return RecommendWarning
	default:
		return RecommendNotice
	}
}

// Rule returns the rule text recorded in a report's metadata.
func Rule(thresholdSqMi float64) string {
	return "Minimum " + strconv.FormatFloat(thresholdSqMi, 'f', -1, 64) + " sq mi"
}

// Evaluate classifies records against thresholdSqMi. A record whose area
// equals the threshold is compliant. Non-compliant regions are ranked by
// shortfall, largest first, keeping input order among equal shortfalls.
// Tiering and ranking use exact values; only the reported figures are rounded.
func Evaluate(records []model.RegionAreaRecord, thresholdSqMi float64, opts ...Option) *model.ComplianceReport {
	o := options{reportType: ReportType}
	for _, opt := range opts {
		opt(&o)
	}

	short := make([]model.ComplianceRecord, 0)
	for _, rec := range records {
		if rec.AreaSqMi >= thresholdSqMi {
			continue
		}
		shortfall := thresholdSqMi - rec.AreaSqMi
		short = append(short, model.ComplianceRecord{
			Name:               rec.Name,
			RequiredSqMi:       thresholdSqMi,
			Recommendation:     Recommend(shortfall),
			ExactAreaSqMi:      rec.AreaSqMi,
			ExactShortfallSqMi: shortfall,
		})
	}

	slices.SortStableFunc(short, func(a, b model.ComplianceRecord) int {
		switch {
		case a.ExactShortfallSqMi > b.ExactShortfallSqMi:
			return -1
		case a.ExactShortfallSqMi < b.ExactShortfallSqMi:
			return 1
		default:
			return 0
		}
	})

	for i := range short {
		short[i].AreaSqMi = round2(short[i].ExactAreaSqMi)
		short[i].ShortfallSqMi = round2(short[i].ExactShortfallSqMi)
	}

	return &model.ComplianceReport{
		Meta: model.ReportMeta{
			ReportType: o.reportType,
			SourceFile: o.source,
			Rule:       Rule(thresholdSqMi),
		},
		Statistics: model.ReportStatistics{
			TotalFeaturesChecked: len(records),
			NonCompliantCount:    len(short),
		},
		NonCompliantRegions: short,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
