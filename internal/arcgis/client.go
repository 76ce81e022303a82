// Package arcgis queries ArcGIS feature services and assembles complete
// GeoJSON result sets from their bounded result pages.
package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/model"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the transport handle used for every page request.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRequestTimeout bounds each page request of the default transport.
// It has no effect when WithDoer is also given.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// Client queries one feature service layer. A Client keeps its connections
// open across the pages of a query; it is not meant to be shared between
// concurrent queries.
type Client struct {
	baseURL        string
	queryURL       string
	userAgent      string
	requestTimeout time.Duration
	doer           Doer
}

// NewClient creates a client for a layer URL such as
// https://services.arcgis.com/.../FeatureServer/0.
func NewClient(serviceURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(serviceURL), "/")
	if base == "" {
		return nil, eris.New("arcgis: service url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, eris.Wrap(err, "arcgis: parse service url")
	}

	c := &Client{
		baseURL:   base,
		queryURL:  base + "/query",
		userAgent: "gis-compliance/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &http.Client{
			Timeout: c.requestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c, nil
}

// QueryURL returns the endpoint pages are requested from.
func (c *Client) QueryURL() string {
	return c.queryURL
}

// Query fetches every feature matching filter and the optional spatial
// filter. Pages are requested one at a time; any failure aborts the query and
// no partial collection is returned.
func (c *Client) Query(ctx context.Context, filter AttributeFilter, spatial *SpatialFilter) (*model.FeatureCollection, error) {
	zap.L().Info("arcgis: querying",
		zap.String("url", c.queryURL),
		zap.String("where", filter.where()),
		zap.Bool("spatial", spatial != nil),
	)

	pager := c.Pager(filter, spatial)
	var features []model.Feature
	for page, err := range pager.Pages(ctx) {
		if err != nil {
			fetchErrorsTotal.WithLabelValues(errorKind(err)).Inc()
			return nil, err
		}
		features = append(features, page.Features...)
		zap.L().Debug("arcgis: fetched page",
			zap.Int("offset", page.Offset),
			zap.Int("page_features", len(page.Features)),
			zap.Int("total_features", len(features)),
		)
	}

	zap.L().Info("arcgis: query complete",
		zap.Int("requests", pager.Requests()),
		zap.Int("features", len(features)),
	)
	return model.NewFeatureCollection(features), nil
}

// QueryNearby fetches every feature matching where within miles of point.
func (c *Client) QueryNearby(ctx context.Context, point Point, miles float64, where string) (*model.FeatureCollection, error) {
	return c.Query(ctx, AttributeFilter{Where: where}, &SpatialFilter{Point: point, DistanceMiles: miles})
}

type serviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type queryResponse struct {
	Type     string          `json:"type"`
	Features []model.Feature `json:"features"`
	Error    *serviceError   `json:"error"`
}

// fetchPage requests one page at offset.
func (c *Client) fetchPage(ctx context.Context, params url.Values, offset int) ([]model.Feature, error) {
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("resultOffset", strconv.Itoa(offset))
	reqURL := c.queryURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{URL: c.queryURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &TransportError{URL: c.queryURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{
			URL:        c.queryURL,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: c.queryURL, Err: err}
	}

	var payload queryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Offset: offset, Err: err}
	}

	if payload.Error != nil {
		msg := payload.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &ProtocolError{Code: payload.Error.Code, Message: msg, Offset: offset}
	}

	pagesFetchedTotal.Inc()
	featuresFetchedTotal.Add(float64(len(payload.Features)))
	return payload.Features, nil
}

func errorKind(err error) string {
	var te *TransportError
	var pe *ProtocolError
	var de *DecodeError
	switch {
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &de):
		return "decode"
	default:
		return "other"
	}
}
