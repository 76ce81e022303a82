package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollectionType is the GeoJSON type tag of a feature collection.
const FeatureCollectionType = "FeatureCollection"

// Feature is a single geographic record as served by a feature service.
// Geometry is expressed in WGS84 longitude/latitude and is nil when absent.
type Feature struct {
	ID         json.RawMessage
	Properties map[string]any
	// Keys lists the attribute names in the order they were served.
	Keys     []string
	Geometry geom.T
}

// FeatureCollection is an ordered sequence of features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns a collection holding the given features.
func NewFeatureCollection(features []Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{Type: FeatureCollectionType, Features: features}
}

// Attribute returns the named attribute and whether it is present.
func (f Feature) Attribute(name string) (any, bool) {
	v, ok := f.Properties[name]
	return v, ok
}

type geojsonFeature struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id,omitempty"`
	Properties json.RawMessage `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// UnmarshalJSON decodes a GeoJSON Feature, keeping attribute order.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw geojsonFeature
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode feature")
	}

	f.ID = raw.ID
	f.Properties = map[string]any{}
	f.Keys = nil
	f.Geometry = nil

	if !isNull(raw.Properties) {
		if err := json.Unmarshal(raw.Properties, &f.Properties); err != nil {
			return eris.Wrap(err, "model: decode feature properties")
		}
		keys, err := objectKeys(raw.Properties)
		if err != nil {
			return eris.Wrap(err, "model: read property order")
		}
		f.Keys = keys
	}

	if !isNull(raw.Geometry) {
		var g geom.T
		if err := geojson.Unmarshal(raw.Geometry, &g); err != nil {
			return eris.Wrap(err, "model: decode feature geometry")
		}
		f.Geometry = g
	}

	return nil
}

// MarshalJSON encodes the feature as a GeoJSON Feature.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := geojsonFeature{Type: "Feature", ID: f.ID}

	props, err := marshalOrdered(f.Keys, f.Properties)
	if err != nil {
		return nil, err
	}
	out.Properties = props

	if f.Geometry == nil {
		out.Geometry = json.RawMessage("null")
	} else {
		g, err := geojson.Marshal(f.Geometry)
		if err != nil {
			return nil, eris.Wrap(err, "model: encode feature geometry")
		}
		out.Geometry = g
	}

	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, eris.Errorf("expected object, got %v", tok)
	}

	var keys []string
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, eris.Errorf("expected object key, got %v", tok)
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// marshalOrdered writes props as a JSON object with keys first in the given
// order, followed by any remaining keys sorted.
func marshalOrdered(keys []string, props map[string]any) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	written := make(map[string]bool, len(props))
	write := func(k string, v any) error {
		if len(written) > 0 {
			buf.WriteByte(',')
		}
		written[k] = true
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return eris.Wrapf(err, "model: encode property %s", k)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}

	for _, k := range keys {
		v, ok := props[k]
		if !ok || written[k] {
			continue
		}
		if err := write(k, v); err != nil {
			return nil, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if written[k] {
			continue
		}
		if err := write(k, props[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
