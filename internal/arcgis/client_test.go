package arcgis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// featureSource serves a dataset of total synthetic features through the
// paginated query protocol and records every query it receives.
type featureSource struct {
	total int

	mu      sync.Mutex
	queries []url.Values
}

func (s *featureSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	offset, _ := strconv.Atoi(q.Get("resultOffset"))
	count, _ := strconv.Atoi(q.Get("resultRecordCount"))
	end := min(offset+count, s.total)

	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write([]byte(featurePage(offset, end)))
}

func (s *featureSource) requests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.queries...)
}

// featurePage renders features [from, to) as a GeoJSON page.
func featurePage(from, to int) string {
	var b strings.Builder
	b.WriteString(`{"type":"FeatureCollection","features":[`)
	for i := from; i < to; i++ {
		if i > from {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"type":"Feature","id":%d,"properties":{"OBJECTID":%d,"NAME":"County %d"},"geometry":{"type":"Point","coordinates":[-97.7,30.2]}}`, i, i, i)
	}
	b.WriteString(`]}`)
	return b.String()
}

func newSourceClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/arcgis/rest/services/Counties/FeatureServer/0/", WithDoer(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestQuery_PaginationTermination(t *testing.T) {
	tests := []struct {
		name      string
		fullPages int
		lastPage  int
	}{
		{"single short page", 0, 7},
		{"one full page then empty", 1, 0},
		{"one full page then short", 1, 1},
		{"two full pages then short", 2, 999},
		{"three full pages then empty", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &featureSource{total: tt.fullPages*PageSize + tt.lastPage}
			c := newSourceClient(t, src)

			fc, err := c.Query(context.Background(), AttributeFilter{}, nil)
			require.NoError(t, err)

			assert.Equal(t, "FeatureCollection", fc.Type)
			require.Len(t, fc.Features, src.total)
			assert.Len(t, src.requests(), tt.fullPages+1)

			seen := make(map[string]bool, len(fc.Features))
			for i, f := range fc.Features {
				id := string(f.ID)
				assert.Equal(t, strconv.Itoa(i), id, "features must arrive in request order without gaps")
				assert.False(t, seen[id], "duplicate feature %s", id)
				seen[id] = true
			}
		})
	}
}

func TestQuery_EmptyResult(t *testing.T) {
	src := &featureSource{total: 0}
	c := newSourceClient(t, src)

	fc, err := c.Query(context.Background(), AttributeFilter{Where: "STATE_NAME = 'Nowhere'"}, nil)
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Empty(t, fc.Features)
	assert.NotNil(t, fc.Features)
	assert.Len(t, src.requests(), 1)
}

func TestQuery_RequestParameters(t *testing.T) {
	src := &featureSource{total: 2*PageSize + 5}
	c := newSourceClient(t, src)

	_, err := c.Query(context.Background(), AttributeFilter{
		Where:     "STATE_NAME = 'Texas'",
		OutFields: []string{"NAME", "FIPS"},
	}, nil)
	require.NoError(t, err)

	reqs := src.requests()
	require.Len(t, reqs, 3)
	for i, q := range reqs {
		assert.Equal(t, "STATE_NAME = 'Texas'", q.Get("where"))
		assert.Equal(t, "NAME,FIPS", q.Get("outFields"))
		assert.Equal(t, "geojson", q.Get("f"))
		assert.Equal(t, "1000", q.Get("resultRecordCount"))
		assert.Equal(t, "4326", q.Get("outSR"))
		assert.Equal(t, strconv.Itoa(i*PageSize), q.Get("resultOffset"))
		assert.Empty(t, q.Get("geometry"))
	}
}

func TestQuery_Defaults(t *testing.T) {
	src := &featureSource{total: 1}
	c := newSourceClient(t, src)

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	require.NoError(t, err)

	q := src.requests()[0]
	assert.Equal(t, "1=1", q.Get("where"))
	assert.Equal(t, "*", q.Get("outFields"))
	assert.Equal(t, "0", q.Get("resultOffset"))
}

func TestQueryNearby_SpatialParameters(t *testing.T) {
	src := &featureSource{total: 3}
	c := newSourceClient(t, src)

	fc, err := c.QueryNearby(context.Background(), Point{Lon: -97.7431, Lat: 30.2672}, 50, "")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)

	q := src.requests()[0]
	assert.Equal(t, "-97.7431,30.2672", q.Get("geometry"))
	assert.Equal(t, "esriGeometryPoint", q.Get("geometryType"))
	assert.Equal(t, "4326", q.Get("inSR"))
	assert.Equal(t, "esriSpatialRelIntersects", q.Get("spatialRel"))
	assert.Equal(t, "50", q.Get("distance"))
	assert.Equal(t, "esriSRUnit_StatuteMile", q.Get("units"))
	assert.Equal(t, "1=1", q.Get("where"))
}

func TestQuery_ProtocolErrorAbortsAfterPriorPages(t *testing.T) {
	var calls atomic.Int32
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			offset, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))
			_, _ = w.Write([]byte(featurePage(offset, offset+PageSize)))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"X","details":[]}}`))
	}))

	fc, err := c.Query(context.Background(), AttributeFilter{}, nil)
	require.Error(t, err)
	assert.Nil(t, fc)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "X", pe.Message)
	assert.Equal(t, 400, pe.Code)
	assert.Equal(t, 2*PageSize, pe.Offset)
	assert.Contains(t, err.Error(), "X")
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_ProtocolErrorWithoutMessage(t *testing.T) {
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":500}}`))
	}))

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Unknown error", pe.Message)
}

func TestQuery_HTTPStatusIsTransportErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.True(t, te.Transient())
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_NotFoundIsNotTransient(t *testing.T) {
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.Transient())
}

func TestQuery_DecodeError(t *testing.T) {
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Offset)
}

func TestQuery_MalformedFeatureIsDecodeError(t *testing.T) {
	c := newSourceClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Nope"}}]}`))
	}))

	_, err := c.Query(context.Background(), AttributeFilter{}, nil)
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

type failingDoer struct {
	calls int
}

func (d *failingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, errors.New("dial tcp: connection refused")
}

func TestQuery_NetworkFailure(t *testing.T) {
	d := &failingDoer{}
	c, err := NewClient("https://example.invalid/FeatureServer/0", WithDoer(d))
	require.NoError(t, err)

	_, err = c.Query(context.Background(), AttributeFilter{}, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.True(t, te.Transient())
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, d.calls)
}

func TestQuery_ContextCancelled(t *testing.T) {
	src := &featureSource{total: 10}
	c := newSourceClient(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Query(ctx, AttributeFilter{}, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPager_SingleUse(t *testing.T) {
	src := &featureSource{total: PageSize + 10}
	c := newSourceClient(t, src)

	p := c.Pager(AttributeFilter{}, nil)
	var pages int
	for _, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		pages++
	}
	assert.Equal(t, 2, pages)
	assert.Equal(t, 2, p.Requests())

	for range p.Pages(context.Background()) {
		t.Fatal("exhausted pager must not yield")
	}
	assert.Len(t, src.requests(), 2)
}

func TestPager_StopEarly(t *testing.T) {
	src := &featureSource{total: 3 * PageSize}
	c := newSourceClient(t, src)

	p := c.Pager(AttributeFilter{}, nil)
	for page, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, 0, page.Offset)
		break
	}
	assert.Equal(t, 1, p.Requests())
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(" https://services.arcgis.com/x/FeatureServer/0/ ")
	require.NoError(t, err)
	assert.Equal(t, "https://services.arcgis.com/x/FeatureServer/0/query", c.QueryURL())

	_, err = NewClient("")
	assert.Error(t, err)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("-97.7431, 30.2672")
	require.NoError(t, err)
	assert.InDelta(t, -97.7431, p.Lon, 1e-9)
	assert.InDelta(t, 30.2672, p.Lat, 1e-9)

	for _, bad := range []string{"", "1", "a,b", "1,2,3", "200,10", "10,95"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}
