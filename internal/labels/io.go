package labels

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a vector file format.
type Format string

// Supported formats.
const (
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
	FormatGPKG      Format = "gpkg"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp":
		return FormatShapefile, nil
	case ".gpkg":
		return FormatGPKG, nil
	}
	return "", eris.Errorf("labels: unsupported vector file %q (want .geojson, .json, .shp or .gpkg)", path)
}

// Read reads a vector file in the format its extension names.
func Read(ctx context.Context, path string, opts ReadOptions) (*Source, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatShapefile:
		return ReadShapefile(path, opts)
	case FormatGPKG:
		return ReadGPKG(ctx, path, "", opts)
	default:
		return ReadGeoJSON(path, opts)
	}
}

// Write writes coll to path in the format its extension names.
func Write(ctx context.Context, path string, coll *Collection) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatShapefile:
		return WriteShapefile(path, coll)
	case FormatGPKG:
		return WriteGPKG(ctx, path, DefaultLayer, coll)
	default:
		return WriteGeoJSON(path, coll)
	}
}

// FromSource turns every record of src into a feature labeled with the value
// of its category field. A source with records must declare the field.
func FromSource(src *Source) (*Collection, error) {
	if len(src.Records) > 0 && !src.HasField(src.CategoryField) {
		return nil, eris.Errorf("labels: %s has no field %q (fields: %s)",
			src.Name, src.CategoryField, strings.Join(src.Fields, ", "))
	}
	features := make([]Feature, len(src.Records))
	for i, r := range src.Records {
		features[i] = Feature{
			Category: r.Attributes[src.CategoryField],
			Geometry: r.Geometry,
			Source:   src.Name,
		}
		// Files this package wrote carry their encoding.
		if code, err := strconv.Atoi(r.Attributes["code"]); err == nil {
			features[i].Code = code
		}
	}
	return &Collection{features: features, srid: src.SRID}, nil
}
