package geo

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// ErrEmptyGeometry is returned when a nil or empty geometry is tested.
var ErrEmptyGeometry = errors.New("geo: empty geometry")

// Intersects reports whether g and b share at least one point. An SRID of 0
// on either side is treated as "same CRS"; two different non-zero SRIDs are
// ErrSRIDMismatch.
func Intersects(g geom.T, b BBox) (bool, error) {
	if g == nil || g.Empty() {
		return false, ErrEmptyGeometry
	}
	if g.SRID() != 0 && b.SRID != 0 && g.SRID() != b.SRID {
		return false, eris.Wrapf(ErrSRIDMismatch, "geo: geometry EPSG:%d vs bbox EPSG:%d", g.SRID(), b.SRID)
	}
	if !geom.NewBounds(geom.XY).Extend(g).Overlaps(geom.XY, b.Bounds()) {
		return false, nil
	}
	return intersects(g, b)
}

func intersects(g geom.T, b BBox) (bool, error) {
	switch g := g.(type) {
	case *geom.Point:
		return b.ContainsPoint(g.X(), g.Y()), nil
	case *geom.MultiPoint:
		return anyVertexInside(g.FlatCoords(), g.Stride(), b), nil
	case *geom.LineString:
		return pathIntersects(g.FlatCoords(), g.Stride(), b), nil
	case *geom.MultiLineString:
		for i := 0; i < g.NumLineStrings(); i++ {
			ls := g.LineString(i)
			if pathIntersects(ls.FlatCoords(), ls.Stride(), b) {
				return true, nil
			}
		}
		return false, nil
	case *geom.Polygon:
		return polygonIntersects(g, b), nil
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			if polygonIntersects(g.Polygon(i), b) {
				return true, nil
			}
		}
		return false, nil
	case *geom.GeometryCollection:
		for _, child := range g.Geoms() {
			if child.Empty() {
				continue
			}
			ok, err := intersects(child, b)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, eris.Errorf("geo: unsupported geometry %T", g)
}

func anyVertexInside(coords []float64, stride int, b BBox) bool {
	for i := 0; i+1 < len(coords); i += stride {
		if b.ContainsPoint(coords[i], coords[i+1]) {
			return true
		}
	}
	return false
}

// pathIntersects reports whether a vertex lies in b or a segment crosses one
// of b's edges.
func pathIntersects(coords []float64, stride int, b BBox) bool {
	if anyVertexInside(coords, stride, b) {
		return true
	}
	edges := bboxEdges(b)
	for i := 0; i+stride+1 < len(coords); i += stride {
		p0 := geom.Coord{coords[i], coords[i+1]}
		p1 := geom.Coord{coords[i+stride], coords[i+stride+1]}
		for _, e := range edges {
			res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{}, p0, p1, e[0], e[1])
			if res.HasIntersection() {
				return true
			}
		}
	}
	return false
}

// polygonIntersects covers three cases: an edge of the polygon crosses or
// lies in b, or b lies wholly inside the polygon (outside every hole).
func polygonIntersects(p *geom.Polygon, b BBox) bool {
	for i := 0; i < p.NumLinearRings(); i++ {
		r := p.LinearRing(i)
		if pathIntersects(r.FlatCoords(), r.Stride(), b) {
			return true
		}
	}

	if p.NumLinearRings() == 0 {
		return false
	}
	corner := geom.Coord{b.MinX, b.MinY}
	shell := p.LinearRing(0)
	if !xy.IsPointInRing(shell.Layout(), corner, shell.FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		hole := p.LinearRing(i)
		if xy.IsPointInRing(hole.Layout(), corner, hole.FlatCoords()) {
			return false
		}
	}
	return true
}

func bboxEdges(b BBox) [4][2]geom.Coord {
	ll := geom.Coord{b.MinX, b.MinY}
	lr := geom.Coord{b.MaxX, b.MinY}
	ur := geom.Coord{b.MaxX, b.MaxY}
	ul := geom.Coord{b.MinX, b.MaxY}
	return [4][2]geom.Coord{{ll, lr}, {lr, ur}, {ur, ul}, {ul, ll}}
}
