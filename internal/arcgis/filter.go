package arcgis

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// PageSize is the fixed number of records requested per page.
	PageSize = 1000

	// WGS84 is the spatial reference of all coordinates sent and received.
	WGS84 = 4326

	defaultWhere     = "1=1"
	defaultOutFields = "*"
)

// AttributeFilter selects features by attribute.
type AttributeFilter struct {
	// Where is a SQL-92 expression; empty means "1=1".
	Where string
	// OutFields lists the attributes to return; empty means all.
	OutFields []string
}

func (f AttributeFilter) where() string {
	if strings.TrimSpace(f.Where) == "" {
		return defaultWhere
	}
	return f.Where
}

func (f AttributeFilter) outFields() string {
	if len(f.OutFields) == 0 {
		return defaultOutFields
	}
	return strings.Join(f.OutFields, ",")
}

// Point is a WGS84 longitude/latitude pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// SpatialFilter restricts a query to features within DistanceMiles of Point.
type SpatialFilter struct {
	Point         Point
	DistanceMiles float64
}

func (s SpatialFilter) apply(params url.Values) {
	params.Set("geometry", formatFloat(s.Point.Lon)+","+formatFloat(s.Point.Lat))
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("inSR", strconv.Itoa(WGS84))
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("distance", formatFloat(s.DistanceMiles))
	params.Set("units", "esriSRUnit_StatuteMile")
}

// queryParams builds the parameters shared by every page of a query.
func queryParams(filter AttributeFilter, spatial *SpatialFilter) url.Values {
	params := url.Values{}
	params.Set("where", filter.where())
	params.Set("outFields", filter.outFields())
	params.Set("f", "geojson")
	params.Set("resultRecordCount", strconv.Itoa(PageSize))
	params.Set("outSR", strconv.Itoa(WGS84))
	if spatial != nil {
		spatial.apply(params)
	}
	return params
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePoint parses "lon,lat".
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, eris.Errorf("arcgis: point %q: want lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "arcgis: point %q: longitude", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "arcgis: point %q: latitude", s)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return Point{}, eris.Errorf("arcgis: point %q out of range", s)
	}
	return Point{Lon: lon, Lat: lat}, nil
}
