package labels

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/landcover-cli/internal/geo"
)

// DBF field widths for the exported attributes.
const (
	categoryWidth = 64
	codeWidth     = 10
	sourceWidth   = 128
)

// ReadOptions tunes vector readers.
type ReadOptions struct {
	// SRID overrides the CRS detected from the file. Zero means detect; a
	// shapefile without a readable .prj then defaults to EPSG:4326.
	SRID int
	// CategoryField names the attribute holding the class. Empty means
	// CategoryField.
	CategoryField string
}

func (o ReadOptions) categoryField() string {
	if o.CategoryField == "" {
		return CategoryField
	}
	return o.CategoryField
}

// ReadShapefile reads a .shp with its .dbf, and the optional .prj and .cpg
// sidecars. Null shapes are skipped; other unsupported shape types fail.
func ReadShapefile(path string, opts ReadOptions) (*Source, error) {
	// go-shp reads attributes from the path with "shp" swapped for "dbf" and
	// returns no fields at all when that file is missing.
	dbfPath := path[:len(path)-len("shp")] + "dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return nil, eris.Wrapf(err, "labels: shapefile %s has no attribute table", path)
	}
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dec, err := charsetDecoder(sidecar(path, ".cpg"))
	if err != nil {
		return nil, err
	}

	srid := opts.SRID
	if srid == 0 {
		srid = detectSRID(path)
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	src := &Source{
		Name:          filepath.Base(path),
		SRID:          srid,
		CategoryField: opts.categoryField(),
		Fields:        names,
	}

	var skipped int
	for reader.Next() {
		row, shape := reader.Shape()
		if _, ok := shape.(*shp.Null); ok || shape == nil {
			skipped++
			continue
		}
		g, err := shapeToGeom(shape)
		if err != nil {
			return nil, eris.Wrapf(err, "labels: %s record %d", src.Name, row)
		}
		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if dec != nil {
				if val, err = dec.String(val); err != nil {
					return nil, eris.Wrapf(err, "labels: decode %s.%s", src.Name, name)
				}
			}
			attrs[name] = val
		}
		src.Records = append(src.Records, Record{Attributes: attrs, Geometry: setSRID(g, srid)})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "labels: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Warn("labels: skipped null shapes",
			zap.String("file", src.Name),
			zap.Int("skipped", skipped),
		)
	}
	return src, nil
}

// sidecar returns path with its extension replaced, matching either case.
func sidecar(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return base + ext
}

// charsetDecoder returns the decoder named by a .cpg file, or nil when the
// file is absent or already names UTF-8.
func charsetDecoder(cpgPath string) (*encoding.Decoder, error) {
	data, err := os.ReadFile(cpgPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "labels: read %s", cpgPath)
	}
	name := strings.TrimSpace(string(data))
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: unknown charset %q in %s", name, cpgPath)
	}
	return enc.NewDecoder(), nil
}

func detectSRID(path string) int {
	prj := sidecar(path, ".prj")
	data, err := os.ReadFile(prj)
	if err != nil {
		zap.L().Warn("labels: no .prj, assuming EPSG:4326", zap.String("file", path))
		return geo.WGS84
	}
	srid, err := geo.EPSGFromPRJ(string(data))
	if err != nil {
		zap.L().Warn("labels: unrecognised .prj, assuming EPSG:4326", zap.String("file", prj), zap.Error(err))
		return geo.WGS84
	}
	return srid
}

// shapeToGeom converts a go-shp shape into a go-geom geometry. Polygon rings
// are grouped by orientation: clockwise rings start a new shell and
// counter-clockwise rings are holes of the preceding shell.
func shapeToGeom(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil

	case *shp.MultiPoint:
		flat := make([]float64, 0, 2*len(s.Points))
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewMultiPointFlat(geom.XY, flat), nil

	case *shp.PolyLine:
		parts := splitParts(s.Parts, s.Points)
		if len(parts) == 1 {
			return geom.NewLineStringFlat(geom.XY, parts[0]), nil
		}
		mls := geom.NewMultiLineString(geom.XY)
		for _, part := range parts {
			if err := mls.Push(geom.NewLineStringFlat(geom.XY, part)); err != nil {
				return nil, eris.Wrap(err, "labels: polyline part")
			}
		}
		return mls, nil

	case *shp.Polygon:
		return ringsToGeom(splitParts(s.Parts, s.Points))
	}
	return nil, eris.Errorf("labels: unsupported shape type %T", shape)
}

func splitParts(parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func ringsToGeom(rings [][]float64) (geom.T, error) {
	var polys []*geom.Polygon
	for i, ring := range rings {
		if len(ring) < 8 {
			return nil, eris.Errorf("labels: polygon ring %d has %d points", i, len(ring)/2)
		}
		lr := geom.NewLinearRingFlat(geom.XY, ring)
		if len(polys) == 0 || !xy.IsRingCounterClockwise(geom.XY, ring) {
			polys = append(polys, geom.NewPolygon(geom.XY))
		}
		if err := polys[len(polys)-1].Push(lr); err != nil {
			return nil, eris.Wrapf(err, "labels: polygon ring %d", i)
		}
	}
	if len(polys) == 0 {
		return nil, eris.New("labels: polygon without rings")
	}
	if len(polys) == 1 {
		return polys[0], nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			return nil, eris.Wrap(err, "labels: multipolygon part")
		}
	}
	return mp, nil
}

// WriteShapefile writes the collection as a shapefile with category, code and
// source attributes, a UTF-8 .cpg and, when the CRS is known, a .prj. Files
// are written to a scratch directory and moved into place on success.
func WriteShapefile(path string, coll *Collection) error {
	if coll.Len() == 0 {
		return eris.New("labels: refusing to write an empty shapefile")
	}
	shapeType, err := collectionShapeType(coll)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tmp, err := os.MkdirTemp(dir, ".shp-*")
	if err != nil {
		return eris.Wrap(err, "labels: create scratch dir")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	if err := writeShapefileTo(filepath.Join(tmp, base+".shp"), shapeType, coll); err != nil {
		return err
	}
	// go-shp names the attribute table <base>dbf, without the dot.
	if err := os.Rename(filepath.Join(tmp, base+"dbf"), filepath.Join(tmp, base+".dbf")); err != nil {
		return eris.Wrap(err, "labels: name .dbf")
	}

	if prj, err := geo.PRJ(coll.SRID()); err == nil {
		if err := os.WriteFile(filepath.Join(tmp, base+".prj"), []byte(prj), 0o644); err != nil {
			return eris.Wrap(err, "labels: write .prj")
		}
	} else {
		zap.L().Warn("labels: writing shapefile without .prj", zap.Int("srid", coll.SRID()))
	}
	if err := os.WriteFile(filepath.Join(tmp, base+".cpg"), []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "labels: write .cpg")
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return eris.Wrap(err, "labels: list scratch dir")
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(tmp, e.Name()), filepath.Join(dir, e.Name())); err != nil {
			return eris.Wrapf(err, "labels: move %s into place", e.Name())
		}
	}
	return nil
}

func writeShapefileTo(path string, shapeType shp.ShapeType, coll *Collection) error {
	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "labels: create shapefile %s", path)
	}
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("category", categoryWidth),
		shp.NumberField("code", codeWidth),
		shp.StringField("source", sourceWidth),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "labels: set dbf fields")
	}

	for i := 0; i < coll.Len(); i++ {
		f := coll.At(i)
		shape, err := geomToShape(f.Geometry)
		if err != nil {
			return eris.Wrapf(err, "labels: feature %d", i)
		}
		row := int(w.Write(shape))
		for j, v := range []any{f.Category, f.Code, truncate(f.Source, sourceWidth)} {
			if err := w.WriteAttribute(row, j, v); err != nil {
				return eris.Wrapf(err, "labels: feature %d attribute %s", i, fields[j].String())
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func collectionShapeType(coll *Collection) (shp.ShapeType, error) {
	var want shp.ShapeType
	for i := 0; i < coll.Len(); i++ {
		var got shp.ShapeType
		switch coll.At(i).Geometry.(type) {
		case *geom.Point:
			got = shp.POINT
		case *geom.MultiPoint:
			got = shp.MULTIPOINT
		case *geom.LineString, *geom.MultiLineString:
			got = shp.POLYLINE
		case *geom.Polygon, *geom.MultiPolygon:
			got = shp.POLYGON
		default:
			return 0, eris.Errorf("labels: feature %d has unsupported geometry %T", i, coll.At(i).Geometry)
		}
		if i == 0 {
			want = got
		} else if got != want {
			return 0, eris.Errorf("labels: feature %d mixes shape types (%d vs %d)", i, got, want)
		}
	}
	return want, nil
}

func geomToShape(g geom.T) (shp.Shape, error) {
	switch g := g.(type) {
	case *geom.Point:
		return &shp.Point{X: g.X(), Y: g.Y()}, nil

	case *geom.MultiPoint:
		points := toPoints(g.FlatCoords(), g.Stride())
		return &shp.MultiPoint{Box: shp.BBoxFromPoints(points), NumPoints: int32(len(points)), Points: points}, nil

	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{toPoints(g.FlatCoords(), g.Stride())}), nil

	case *geom.MultiLineString:
		parts := make([][]shp.Point, 0, g.NumLineStrings())
		for i := 0; i < g.NumLineStrings(); i++ {
			ls := g.LineString(i)
			parts = append(parts, toPoints(ls.FlatCoords(), ls.Stride()))
		}
		return shp.NewPolyLine(parts), nil

	case *geom.Polygon:
		poly := shp.Polygon(*shp.NewPolyLine(polygonParts(g)))
		return &poly, nil

	case *geom.MultiPolygon:
		var parts [][]shp.Point
		for i := 0; i < g.NumPolygons(); i++ {
			parts = append(parts, polygonParts(g.Polygon(i))...)
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		return &poly, nil
	}
	return nil, eris.Errorf("labels: unsupported geometry %T", g)
}

// polygonParts orients the shell clockwise and holes counter-clockwise.
func polygonParts(p *geom.Polygon) [][]shp.Point {
	parts := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		r := p.LinearRing(i)
		points := toPoints(r.FlatCoords(), r.Stride())
		ccw := len(points) >= 4 && xy.IsRingCounterClockwise(r.Layout(), r.FlatCoords())
		if (i == 0) == ccw {
			slices.Reverse(points)
		}
		parts = append(parts, points)
	}
	return parts
}

func toPoints(flat []float64, stride int) []shp.Point {
	out := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return out
}

func setSRID(g geom.T, srid int) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.SetSRID(srid)
	case *geom.MultiPoint:
		return g.SetSRID(srid)
	case *geom.LineString:
		return g.SetSRID(srid)
	case *geom.MultiLineString:
		return g.SetSRID(srid)
	case *geom.Polygon:
		return g.SetSRID(srid)
	case *geom.MultiPolygon:
		return g.SetSRID(srid)
	case *geom.GeometryCollection:
		return g.SetSRID(srid)
	}
	return g
}

// withSRID returns g tagged with srid, copying it rather than mutating a
// geometry a collection may share.
func withSRID(g geom.T, srid int) geom.T {
	if g.SRID() == srid {
		return g
	}
	switch g := g.(type) {
	case *geom.Point:
		return g.Clone().SetSRID(srid)
	case *geom.MultiPoint:
		return g.Clone().SetSRID(srid)
	case *geom.LineString:
		return g.Clone().SetSRID(srid)
	case *geom.MultiLineString:
		return g.Clone().SetSRID(srid)
	case *geom.Polygon:
		return g.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		return g.Clone().SetSRID(srid)
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		if err := gc.Push(g.Geoms()...); err != nil {
			return g
		}
		return gc.SetSRID(srid)
	}
	return g
}
