package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/model"
	"github.com/sells-group/gis-compliance/internal/resilience"
	"github.com/sells-group/gis-compliance/internal/session"
)

// countiesPage holds a 1x1 degree quad (about 4109 sq mi) and a 0.1x0.1
// degree sliver (about 41 sq mi).
const countiesPage = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":1,"properties":{"NAME":"Quad","STATE_NAME":"Texas"},
	 "geometry":{"type":"Polygon","coordinates":[[[-98,30],[-97,30],[-97,31],[-98,31],[-98,30]]]}},
	{"type":"Feature","id":2,"properties":{"NAME":"Sliver","STATE_NAME":"Texas"},
	 "geometry":{"type":"Polygon","coordinates":[[[-98,30],[-97.9,30],[-97.9,30.1],[-98,30.1],[-98,30]]]}}
]}`

// flakyService fails the first failures requests with status, then serves
// countiesPage.
type flakyService struct {
	failures int32
	status   int
	body     string
	calls    atomic.Int32
}

func (s *flakyService) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	n := s.calls.Add(1)
	if n <= s.failures {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
		return
	}
	_, _ = w.Write([]byte(countiesPage))
}

func newAuditor(t *testing.T, h http.Handler) *Auditor {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := arcgis.NewClient(srv.URL+"/FeatureServer/0", arcgis.WithDoer(srv.Client()))
	require.NoError(t, err)
	p, err := area.ProjectorForEPSG(area.DefaultEPSG)
	require.NoError(t, err)

	return &Auditor{Fetcher: client, Projector: p}
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestAudit(t *testing.T) {
	a := newAuditor(t, &flakyService{})

	res, err := a.Audit(context.Background(), AuditRequest{
		Filter:        arcgis.AttributeFilter{Where: "STATE_NAME = 'Texas'"},
		ThresholdSqMi: 2500,
		Source:        "counties",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Areas, 2)
	assert.InEpsilon(t, 4109.0, res.Areas[0].AreaSqMi, 0.001)

	report := res.Report
	assert.Equal(t, "counties", report.Meta.SourceFile)
	assert.Equal(t, 2, report.Statistics.TotalFeaturesChecked)
	require.Equal(t, 1, report.Statistics.NonCompliantCount)
	assert.Equal(t, "Sliver", report.NonCompliantRegions[0].Name)
	assert.Contains(t, report.NonCompliantRegions[0].Recommendation, "CRITICAL")
	assert.Empty(t, res.SessionID)
}

func TestAudit_DefaultThreshold(t *testing.T) {
	a := newAuditor(t, &flakyService{})

	res, err := a.Audit(context.Background(), AuditRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Minimum 2500 sq mi", res.Report.Meta.Rule)
}

func TestAudit_RetriesTransientTransportErrors(t *testing.T) {
	svc := &flakyService{failures: 2, status: http.StatusServiceUnavailable}
	a := newAuditor(t, svc)
	a.Retry = fastRetry(3)

	res, err := a.Audit(context.Background(), AuditRequest{ThresholdSqMi: 2500})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), svc.calls.Load())
}

func TestAudit_NoRetryByDefault(t *testing.T) {
	svc := &flakyService{failures: 1, status: http.StatusServiceUnavailable}
	a := newAuditor(t, svc)

	_, err := a.Audit(context.Background(), AuditRequest{})
	var te *arcgis.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, int32(1), svc.calls.Load())
}

func TestAudit_DoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name   string
		svc    *flakyService
		target any
	}{
		{"not found", &flakyService{failures: 5, status: http.StatusNotFound}, new(*arcgis.TransportError)},
		{"protocol error", &flakyService{failures: 5, status: http.StatusOK, body: `{"error":{"code":400,"message":"Invalid query"}}`}, new(*arcgis.ProtocolError)},
		{"decode error", &flakyService{failures: 5, status: http.StatusOK, body: `<html>`}, new(*arcgis.DecodeError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuditor(t, tt.svc)
			a.Retry = fastRetry(4)

			_, err := a.Audit(context.Background(), AuditRequest{})
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
			assert.Equal(t, int32(1), tt.svc.calls.Load())
		})
	}
}

func TestAudit_Timeout(t *testing.T) {
	a := newAuditor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	a.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := a.Audit(context.Background(), AuditRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestAudit_SavesSession(t *testing.T) {
	st, err := session.NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	a := newAuditor(t, &flakyService{})
	a.Sessions = st

	spatial := &arcgis.SpatialFilter{Point: arcgis.Point{Lon: -97.74, Lat: 30.27}, DistanceMiles: 50}
	res, err := a.Audit(context.Background(), AuditRequest{
		Filter:        arcgis.AttributeFilter{Where: "STATE_NAME = 'Texas'", OutFields: []string{"NAME"}},
		Spatial:       spatial,
		ThresholdSqMi: 2500,
		SaveAs:        "Austin Audit",
		User:          "analyst@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(st.Dir(), "austin_audit.json"), res.SessionID)

	sess, err := st.Load(context.Background(), "Austin Audit")
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.com", sess.Meta.CreatedBy)
	assert.Equal(t, "STATE_NAME = 'Texas'", sess.Parameters["where"])
	assert.Equal(t, 2500.0, sess.Parameters["threshold_sqmi"])
	assert.Equal(t, 3083.0, sess.Parameters["epsg"])
	near := sess.Parameters["near"].(map[string]any)
	assert.Equal(t, 50.0, near["miles"])
	require.Len(t, sess.GISResultsSnapshot, 2)
	assert.Equal(t, "Quad", sess.GISResultsSnapshot[0]["name"])

	report, err := sess.Report()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Statistics.NonCompliantCount)
	assert.Equal(t, "Sliver", report.NonCompliantRegions[0].Name)
}

func TestAudit_SaveRequiresStore(t *testing.T) {
	a := newAuditor(t, &flakyService{})
	_, err := a.Audit(context.Background(), AuditRequest{SaveAs: "x"})
	assert.ErrorContains(t, err, "no session store")
}

type stubFetcher struct {
	fc  *model.FeatureCollection
	err error
}

func (s stubFetcher) Query(context.Context, arcgis.AttributeFilter, *arcgis.SpatialFilter) (*model.FeatureCollection, error) {
	return s.fc, s.err
}

func TestAudit_Errors(t *testing.T) {
	p, err := area.ProjectorForEPSG(area.DefaultEPSG)
	require.NoError(t, err)

	_, err = (&Auditor{Projector: p}).Audit(context.Background(), AuditRequest{})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = (&Auditor{Fetcher: stubFetcher{err: boom}, Projector: p, Retry: fastRetry(3)}).Audit(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, boom)

	noGeom := model.NewFeatureCollection([]model.Feature{{Properties: map[string]any{"NAME": "Ghost"}}})
	_, err = (&Auditor{Fetcher: stubFetcher{fc: noGeom}, Projector: p}).Audit(context.Background(), AuditRequest{})
	var ge *area.GeometryError
	assert.ErrorAs(t, err, &ge)
}

func TestAudit_EmptyResult(t *testing.T) {
	p, err := area.ProjectorForEPSG(area.DefaultEPSG)
	require.NoError(t, err)

	res, err := (&Auditor{Fetcher: stubFetcher{fc: model.NewFeatureCollection(nil)}, Projector: p}).
		Audit(context.Background(), AuditRequest{ThresholdSqMi: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Report.Statistics.TotalFeaturesChecked)
	assert.Empty(t, res.Report.NonCompliantRegions)
}
