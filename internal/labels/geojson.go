package labels

import (
	"encoding/json"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/geo"
)

// ReadGeoJSON reads a FeatureCollection. GeoJSON is EPSG:4326 unless
// opts.SRID says otherwise.
func ReadGeoJSON(path string, opts ReadOptions) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: open %s", path)
	}
	defer func() { _ = f.Close() }()

	src, err := DecodeGeoJSON(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: read %s", path)
	}
	src.Name = filepath.Base(path)
	return src, nil
}

// DecodeGeoJSON decodes a FeatureCollection from r.
func DecodeGeoJSON(r io.Reader, opts ReadOptions) (*Source, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "labels: decode geojson")
	}

	srid := opts.SRID
	if srid == 0 {
		srid = geo.WGS84
	}

	fieldSet := make(map[string]struct{})
	src := &Source{SRID: srid, CategoryField: opts.categoryField()}
	for i, feat := range fc.Features {
		if feat.Geometry == nil {
			return nil, eris.Errorf("labels: geojson feature %d has no geometry", i)
		}
		attrs := make(map[string]string, len(feat.Properties))
		for k, v := range feat.Properties {
			s, err := propertyString(v)
			if err != nil {
				return nil, eris.Wrapf(err, "labels: geojson feature %d property %s", i, k)
			}
			attrs[k] = s
			fieldSet[k] = struct{}{}
		}
		src.Records = append(src.Records, Record{Attributes: attrs, Geometry: setSRID(feat.Geometry, srid)})
	}
	src.Fields = slices.Sorted(maps.Keys(fieldSet))
	return src, nil
}

func propertyString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeGeoJSON writes coll as a FeatureCollection with category, code and
// source properties.
func EncodeGeoJSON(w io.Writer, coll *Collection) error {
	if coll.SRID() != geo.WGS84 {
		zap.L().Warn("labels: writing GeoJSON outside EPSG:4326", zap.Int("srid", coll.SRID()))
	}
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, coll.Len())}
	for i := 0; i < coll.Len(); i++ {
		f := coll.At(i)
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: f.Geometry,
			Properties: map[string]any{
				"category": f.Category,
				"code":     f.Code,
				"source":   f.Source,
			},
		})
	}
	if err := json.NewEncoder(w).Encode(&fc); err != nil {
		return eris.Wrap(err, "labels: encode geojson")
	}
	return nil
}

// WriteGeoJSON writes coll to path through a temp file renamed on success.
func WriteGeoJSON(path string, coll *Collection) error {
	return writeAtomic(path, func(w io.Writer) error { return EncodeGeoJSON(w, coll) })
}

func writeAtomic(path string, fn func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "labels: create temp for %s", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fn(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrapf(err, "labels: close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "labels: rename into %s", path)
	}
	return nil
}
