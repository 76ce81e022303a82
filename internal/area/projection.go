package area

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Projector reprojects WGS84 longitude/latitude geometries into a projected
// reference system measured in metres.
type Projector interface {
	// Project returns g expressed in the target reference system.
	Project(g geom.T) (geom.T, error)
	// EPSG returns the code of the target reference system.
	EPSG() int
}

// GRS80 ellipsoid, used by NAD83.
const (
	grs80SemiMajor  = 6378137.0
	grs80Flattening = 1 / 298.257222101
)

// AlbersParams defines an Albers equal-area conic projection. Angles are in
// degrees, false easting and northing in metres.
type AlbersParams struct {
	EPSG          int
	Name          string
	Lat0          float64
	Lon0          float64
	Lat1          float64
	Lat2          float64
	FalseEasting  float64
	FalseNorthing float64
}

var (
	// TexasCentricAlbers is EPSG:3083, NAD83 / Texas Centric Albers Equal Area.
	TexasCentricAlbers = AlbersParams{
		EPSG: 3083, Name: "NAD83 / Texas Centric Albers Equal Area",
		Lat0: 18, Lon0: -100, Lat1: 27.5, Lat2: 35,
		FalseEasting: 1500000, FalseNorthing: 6000000,
	}

	// ConusAlbers is EPSG:5070, NAD83 / Conus Albers.
	ConusAlbers = AlbersParams{
		EPSG: 5070, Name: "NAD83 / Conus Albers",
		Lat0: 23, Lon0: -96, Lat1: 29.5, Lat2: 45.5,
	}
)

// DefaultEPSG is the equal-area system used when none is configured.
const DefaultEPSG = 3083

var albersByEPSG = map[int]AlbersParams{
	TexasCentricAlbers.EPSG: TexasCentricAlbers,
	ConusAlbers.EPSG:        ConusAlbers,
}

// SupportedEPSG lists the reference systems ProjectorForEPSG accepts.
func SupportedEPSG() []int {
	codes := make([]int, 0, len(albersByEPSG))
	for code := range albersByEPSG {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// ProjectorForEPSG returns the equal-area projector for code.
func ProjectorForEPSG(code int) (*AlbersProjector, error) {
	p, ok := albersByEPSG[code]
	if !ok {
		return nil, eris.Errorf("area: unsupported equal-area reference system EPSG:%d (supported: %v)", code, SupportedEPSG())
	}
	return NewAlbers(p)
}

// AlbersProjector implements Projector with the ellipsoidal Albers
// equal-area conic projection.
type AlbersProjector struct {
	params AlbersParams
	a      float64
	e      float64
	e2     float64
	lon0   float64
	n      float64
	c      float64
	rho0   float64
}

// NewAlbers builds a projector from params.
func NewAlbers(p AlbersParams) (*AlbersProjector, error) {
	if p.Lat1 == -p.Lat2 {
		return nil, eris.Errorf("area: standard parallels %v and %v are symmetric about the equator", p.Lat1, p.Lat2)
	}
	for _, lat := range []float64{p.Lat0, p.Lat1, p.Lat2} {
		if math.Abs(lat) >= 90 {
			return nil, eris.Errorf("area: latitude %v out of range", lat)
		}
	}

	f := grs80Flattening
	e2 := f * (2 - f)
	ap := &AlbersProjector{
		params: p,
		a:      grs80SemiMajor,
		e2:     e2,
		e:      math.Sqrt(e2),
		lon0:   radians(p.Lon0),
	}

	phi1, phi2 := radians(p.Lat1), radians(p.Lat2)
	m1, m2 := ap.m(phi1), ap.m(phi2)
	q1, q2 := ap.q(phi1), ap.q(phi2)

	if math.Abs(phi1-phi2) < 1e-10 {
		ap.n = math.Sin(phi1)
	} else {
		ap.n = (m1*m1 - m2*m2) / (q2 - q1)
	}
	ap.c = m1*m1 + ap.n*q1
	ap.rho0 = ap.rho(radians(p.Lat0))
	return ap, nil
}

// EPSG implements Projector.
func (ap *AlbersProjector) EPSG() int {
	return ap.params.EPSG
}

// Name returns the reference system name.
func (ap *AlbersProjector) Name() string {
	return ap.params.Name
}

// Forward projects a single longitude/latitude pair to metres.
func (ap *AlbersProjector) Forward(lon, lat float64) (x, y float64) {
	rho := ap.rho(radians(lat))
	dLon := radians(lon) - ap.lon0
	for dLon > math.Pi {
		dLon -= 2 * math.Pi
	}
	for dLon < -math.Pi {
		dLon += 2 * math.Pi
	}
	theta := ap.n * dLon
	x = ap.params.FalseEasting + rho*math.Sin(theta)
	y = ap.params.FalseNorthing + ap.rho0 - rho*math.Cos(theta)
	return x, y
}

// Project implements Projector. Only the first two ordinates of each
// coordinate are transformed.
func (ap *AlbersProjector) Project(g geom.T) (geom.T, error) {
	switch g := g.(type) {
	case nil:
		return nil, eris.New("area: project nil geometry")
	case *geom.Point:
		return geom.NewPointFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride())), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride())), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride())), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride()), slices.Clone(g.Ends())), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride()), slices.Clone(g.Ends())), nil
	case *geom.MultiPolygon:
		endss := make([][]int, 0, len(g.Endss()))
		for _, ends := range g.Endss() {
			endss = append(endss, slices.Clone(ends))
		}
		return geom.NewMultiPolygonFlat(g.Layout(), ap.projectFlat(g.FlatCoords(), g.Stride()), endss), nil
	case *geom.GeometryCollection:
		out := geom.NewGeometryCollection()
		for _, member := range g.Geoms() {
			pg, err := ap.Project(member)
			if err != nil {
				return nil, err
			}
			if err := out.Push(pg); err != nil {
				return nil, eris.Wrap(err, "area: rebuild geometry collection")
			}
		}
		return out, nil
	default:
		return nil, eris.Errorf("area: cannot project geometry type %T", g)
	}
}

func (ap *AlbersProjector) projectFlat(flat []float64, stride int) []float64 {
	out := slices.Clone(flat)
	if stride < 2 {
		return out
	}
	for i := 0; i+1 < len(out); i += stride {
		out[i], out[i+1] = ap.Forward(out[i], out[i+1])
	}
	return out
}

func (ap *AlbersProjector) q(phi float64) float64 {
	s := math.Sin(phi)
	es := ap.e * s
	return (1 - ap.e2) * (s/(1-es*es) - math.Log((1-es)/(1+es))/(2*ap.e))
}

func (ap *AlbersProjector) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-ap.e2*s*s)
}

func (ap *AlbersProjector) rho(phi float64) float64 {
	return ap.a * math.Sqrt(math.Max(ap.c-ap.n*ap.q(phi), 0)) / ap.n
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
