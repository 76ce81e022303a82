package area

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/model"
)

// ReadShapefile reads a shapefile's records as features. Coordinates are
// taken to be WGS84 longitude/latitude; the .prj sidecar is not consulted.
func ReadShapefile(path string) (*model.FeatureCollection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "area: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []model.Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]any, len(fields))
		for i, f := range fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			props[names[i]] = attributeValue(f.Fieldtype, val)
		}

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
		}
		features = append(features, model.Feature{
			Properties: props,
			Keys:       names,
			Geometry:   g,
		})
	}

	if skipped > 0 {
		zap.L().Warn("area: shapefile records without usable geometry",
			zap.String("path", path),
			zap.Int("records", skipped),
		)
	}
	return model.NewFeatureCollection(features), nil
}

// attributeValue converts numeric DBF columns to float64.
func attributeValue(fieldType byte, val string) any {
	if val == "" {
		return nil
	}
	if fieldType == 'N' || fieldType == 'F' {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return val
}

// shapeGeometry converts a go-shp shape to a go-geom geometry, or nil for
// unsupported or empty shapes.
func shapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineGeometry(s)
	case *shp.Polygon:
		return polygonGeometry(s)
	default:
		return nil
	}
}

func polyLineGeometry(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY)
	for _, part := range partCoords(pl.Parts, pl.Points) {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, part)); err != nil {
			zap.L().Debug("area: skipping malformed linestring part", zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonGeometry groups shapefile rings into polygons. Shapefile outer rings
// run clockwise and holes counter-clockwise; each hole belongs to the outer
// ring before it.
func polygonGeometry(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("area: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for _, ring := range partCoords(p.Parts, p.Points) {
		if len(ring) < 8 {
			continue
		}
		lr := geom.NewLinearRingFlat(geom.XY, ring)
		if signedArea(ring) < 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(lr); err != nil {
			zap.L().Debug("area: skipping malformed ring", zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// partCoords splits shapefile points into flat XY coordinates per part.
func partCoords(parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		out = append(out, flat)
	}
	return out
}

// signedArea is the shoelace area of a flat XY ring: positive when
// counter-clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
