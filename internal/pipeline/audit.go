// Package pipeline runs a complete audit: fetch features from the service,
// measure them, evaluate the minimum-area rule and optionally save a session.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/compliance"
	"github.com/sells-group/gis-compliance/internal/model"
	"github.com/sells-group/gis-compliance/internal/resilience"
	"github.com/sells-group/gis-compliance/internal/session"
)

// Fetcher retrieves every feature matching a query.
type Fetcher interface {
	Query(ctx context.Context, filter arcgis.AttributeFilter, spatial *arcgis.SpatialFilter) (*model.FeatureCollection, error)
}

// Auditor wires the fetch, area and compliance stages together.
type Auditor struct {
	Fetcher   Fetcher
	Projector area.Projector
	// Sessions is optional; requests with SaveAs fail without it.
	Sessions session.Store
	// Retry applies to the whole fetch. MaxAttempts <= 1 disables it.
	Retry resilience.RetryConfig
	// Timeout bounds each fetch attempt, all pages included. Zero means none.
	Timeout time.Duration
}

// AuditRequest describes one audit.
type AuditRequest struct {
	Filter        arcgis.AttributeFilter
	Spatial       *arcgis.SpatialFilter
	ThresholdSqMi float64
	// Source is recorded as the report's source_file.
	Source string
	// SaveAs names the session to persist; empty skips saving.
	SaveAs string
	User   string
}

// AuditResult is the outcome of an audit.
type AuditResult struct {
	Areas     model.RegionAreaRecords
	Report    *model.ComplianceReport
	Attempts  int
	SessionID string
}

// Audit fetches, measures and evaluates. Transport failures marked transient
// are retried per a.Retry; protocol and decode errors abort immediately.
func (a *Auditor) Audit(ctx context.Context, req AuditRequest) (*AuditResult, error) {
	if a.Fetcher == nil || a.Projector == nil {
		return nil, eris.New("pipeline: auditor needs a fetcher and a projector")
	}
	if req.SaveAs != "" && a.Sessions == nil {
		return nil, eris.New("pipeline: no session store configured")
	}
	threshold := req.ThresholdSqMi
	if threshold <= 0 {
		threshold = compliance.DefaultThresholdSqMi
	}

	log := zap.L().With(zap.String("source", req.Source), zap.String("where", req.Filter.Where))
	start := time.Now()

	attempts := 0
	retry := a.Retry
	retry.ShouldRetry = retryable
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("arcgis query")
	}
	fc, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.FeatureCollection, error) {
		attempts++
		if a.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.Timeout)
			defer cancel()
		}
		return a.Fetcher.Query(ctx, req.Filter, req.Spatial)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch features (%d attempts)", attempts)
	}

	areas, err := area.ComputeAreas(fc, a.Projector)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: compute areas")
	}

	report := compliance.Evaluate(areas, threshold, compliance.WithSource(req.Source))
	result := &AuditResult{Areas: areas, Report: report, Attempts: attempts}

	if req.SaveAs != "" {
		id, err := a.Sessions.Save(ctx, session.SaveRequest{
			Name:       req.SaveAs,
			Parameters: parameters(req, threshold, a.Projector.EPSG()),
			Results:    areas,
			Report:     report,
			User:       req.User,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: save session")
		}
		result.SessionID = id
	}

	log.Info("pipeline: audit complete",
		zap.Int("features", report.Statistics.TotalFeaturesChecked),
		zap.Int("non_compliant", report.Statistics.NonCompliantCount),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func retryable(err error) bool {
	var te *arcgis.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return resilience.IsTransient(err)
}

// parameters records the query that produced an audit.
func parameters(req AuditRequest, threshold float64, epsg int) map[string]any {
	where := req.Filter.Where
	if where == "" {
		where = "1=1"
	}
	p := map[string]any{
		"where":          where,
		"threshold_sqmi": threshold,
		"epsg":           epsg,
	}
	if req.Source != "" {
		p["source"] = req.Source
	}
	if len(req.Filter.OutFields) > 0 {
		p["out_fields"] = req.Filter.OutFields
	}
	if req.Spatial != nil {
		p["near"] = map[string]any{
			"lon":   req.Spatial.Point.Lon,
			"lat":   req.Spatial.Point.Lat,
			"miles": req.Spatial.DistanceMiles,
		}
	}
	return p
}
