// Package area measures feature geometries in square miles after projecting
// them into an equal-area reference system.
package area

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/model"
)

const (
	// SquareMetersPerSquareMile converts projected areas to square miles.
	SquareMetersPerSquareMile = 2589988.11

	// NameAttribute is the preferred attribute for region names.
	NameAttribute = "NAME"

	wgs84 = 4326
)

// ComputeAreas returns one record per feature, in input order, holding the
// feature's name and its area in square miles. Geometry is dropped.
func ComputeAreas(fc *model.FeatureCollection, p Projector) (model.RegionAreaRecords, error) {
	if fc == nil {
		return nil, &InputError{Err: eris.New("no feature collection")}
	}
	if p == nil {
		return nil, eris.New("area: projector is required")
	}
	if p.EPSG() == wgs84 {
		return nil, eris.New("area: refusing to measure area in geographic (degree) coordinates")
	}
	if len(fc.Features) == 0 {
		return model.RegionAreaRecords{}, nil
	}

	nameCol, err := resolveNameColumn(fc.Features)
	if err != nil {
		return nil, err
	}

	records := make(model.RegionAreaRecords, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := attributeString(f.Properties[nameCol])
		sqm, err := projectedArea(f.Geometry, p)
		if err != nil {
			return nil, &GeometryError{Index: i, Name: name, Err: err}
		}
		records = append(records, model.RegionAreaRecord{
			Name:     name,
			AreaSqMi: sqm / SquareMetersPerSquareMile,
		})
	}

	zap.L().Debug("area: computed feature areas",
		zap.Int("features", len(records)),
		zap.Int("epsg", p.EPSG()),
		zap.String("name_column", nameCol),
	)
	return records, nil
}

// ComputeFileAreas loads a feature file and computes its areas.
func ComputeFileAreas(path string, p Projector) (model.RegionAreaRecords, error) {
	fc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return ComputeAreas(fc, p)
}

// projectedArea returns the planar area of g in the projector's units.
func projectedArea(g geom.T, p Projector) (float64, error) {
	if g == nil {
		return 0, eris.New("geometry is absent")
	}
	projected, err := p.Project(g)
	if err != nil {
		return 0, err
	}
	a, ok := planarArea(projected)
	if !ok {
		return 0, eris.Errorf("geometry type %T has no area", g)
	}
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return 0, eris.Errorf("degenerate geometry (area %v)", a)
	}
	return a, nil
}

// planarArea sums unsigned polygon areas: each exterior ring counts
// positive and each hole negative, whatever the ring winding.
func planarArea(g geom.T) (float64, bool) {
	switch g := g.(type) {
	case *geom.Polygon:
		return polygonArea(g), true
	case *geom.MultiPolygon:
		var total float64
		for i := 0; i < g.NumPolygons(); i++ {
			total += polygonArea(g.Polygon(i))
		}
		return total, true
	case *geom.GeometryCollection:
		var total float64
		var found bool
		for _, member := range g.Geoms() {
			if a, ok := planarArea(member); ok {
				total += a
				found = true
			}
		}
		return total, found
	default:
		return 0, false
	}
}

func polygonArea(p *geom.Polygon) float64 {
	var a float64
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := math.Abs(p.LinearRing(i).Area())
		if i == 0 {
			a += ring
		} else {
			a -= ring
		}
	}
	return a
}

// resolveNameColumn picks NAME when any feature has it, otherwise the first
// attribute in served order.
func resolveNameColumn(features []model.Feature) (string, error) {
	for _, f := range features {
		if _, ok := f.Properties[NameAttribute]; ok {
			return NameAttribute, nil
		}
	}

	for _, f := range features {
		col := ""
		if len(f.Keys) > 0 {
			col = f.Keys[0]
		} else if len(f.Properties) > 0 {
			keys := make([]string, 0, len(f.Properties))
			for k := range f.Properties {
				keys = append(keys, k)
			}
			col = slices.Min(keys)
		}
		if col != "" {
			zap.L().Warn("area: no NAME attribute, falling back to first attribute",
				zap.String("column", col),
			)
			return col, nil
		}
	}

	return "", &SchemaError{Reason: "features carry no attributes to name regions by"}
}

func attributeString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
