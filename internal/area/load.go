package area

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gis-compliance/internal/model"
)

// LoadFile reads a GeoJSON FeatureCollection (.geojson, .json) or an ESRI
// shapefile (.shp). Any failure is returned as *InputError.
func LoadFile(path string) (*model.FeatureCollection, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Source: path, Err: eris.Errorf("could not find file: %s", path)}
		}
		return nil, &InputError{Source: path, Err: err}
	}
	if info.IsDir() {
		return nil, &InputError{Source: path, Err: eris.New("path is a directory")}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		fc, err := ReadShapefile(path)
		if err != nil {
			return nil, &InputError{Source: path, Err: err}
		}
		return fc, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &InputError{Source: path, Err: err}
		}
		fc, err := DecodeFeatureCollection(data)
		if err != nil {
			return nil, &InputError{Source: path, Err: err}
		}
		return fc, nil
	}
}

// DecodeFeatureCollection parses a GeoJSON FeatureCollection document.
func DecodeFeatureCollection(data []byte) (*model.FeatureCollection, error) {
	var fc model.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "area: parse geojson")
	}
	if fc.Type != model.FeatureCollectionType {
		return nil, eris.Errorf("area: expected a FeatureCollection, got type %q", fc.Type)
	}
	return model.NewFeatureCollection(fc.Features), nil
}
