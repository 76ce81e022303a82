package compliance

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/model"
)

// CheckFile measures the features in path and evaluates them against
// thresholdSqMi. A missing or unreadable file yields an error-shaped report
// and a nil error; schema, geometry and projection errors are returned.
func CheckFile(path string, thresholdSqMi float64, p area.Projector) (*model.ComplianceReport, error) {
	records, err := area.ComputeFileAreas(path, p)
	if err != nil {
		var ie *area.InputError
		if errors.As(err, &ie) {
			zap.L().Warn("compliance: input unavailable", zap.String("path", path), zap.Error(err))
			return model.ErrorReport(ie.Err.Error()), nil
		}
		return nil, err
	}

	report := Evaluate(records, thresholdSqMi, WithSource(path))
	zap.L().Info("compliance: check complete",
		zap.String("path", path),
		zap.Int("features", report.Statistics.TotalFeaturesChecked),
		zap.Int("non_compliant", report.Statistics.NonCompliantCount),
	)
	return report, nil
}
