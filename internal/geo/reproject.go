package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// edgeSamples is the number of points sampled along each bbox edge when a
// bbox is reprojected; curved edges in the target CRS would otherwise clip.
const edgeSamples = 21

// Reproject returns a copy of g in the CRS named by to. g must carry its
// source SRID.
func Reproject(g geom.T, to int) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geo: reproject nil geometry")
	}
	if g.SRID() == 0 {
		return nil, eris.New("geo: reproject geometry without SRID")
	}
	tr, err := NewTransformer(g.SRID(), to)
	if err != nil {
		return nil, err
	}
	return tr.Geometry(g)
}

// Geometry applies the transformer to every vertex of a copy of g.
func (t *Transformer) Geometry(g geom.T) (geom.T, error) {
	switch g := g.(type) {
	case *geom.Point:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.MultiPoint:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.LineString:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.MultiLineString:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.Polygon:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.MultiPolygon:
		c := g.Clone()
		t.flat(c.FlatCoords(), c.Stride())
		return c.SetSRID(t.To), nil
	case *geom.GeometryCollection:
		out := geom.NewGeometryCollection()
		for _, child := range g.Geoms() {
			rc, err := t.Geometry(child)
			if err != nil {
				return nil, err
			}
			if err := out.Push(rc); err != nil {
				return nil, eris.Wrap(err, "geo: rebuild collection")
			}
		}
		return out.SetSRID(t.To), nil
	}
	return nil, eris.Errorf("geo: cannot reproject %T", g)
}

func (t *Transformer) flat(coords []float64, stride int) {
	for i := 0; i+1 < len(coords); i += stride {
		coords[i], coords[i+1] = t.Apply(coords[i], coords[i+1])
	}
}

// Reproject returns the bounds of b after transforming a densified outline
// into the CRS named by to.
func (b BBox) Reproject(to int) (BBox, error) {
	if b.SRID == to {
		return b, nil
	}
	if b.SRID == 0 {
		return BBox{}, eris.New("geo: reproject bbox without SRID")
	}
	tr, err := NewTransformer(b.SRID, to)
	if err != nil {
		return BBox{}, err
	}

	bounds := geom.NewBounds(geom.XY)
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) / float64(edgeSamples-1)
		x := b.MinX + f*b.Width()
		y := b.MinY + f*b.Height()
		for _, p := range [][2]float64{{x, b.MinY}, {x, b.MaxY}, {b.MinX, y}, {b.MaxX, y}} {
			px, py := tr.Apply(p[0], p[1])
			bounds.Extend(geom.NewPointFlat(geom.XY, []float64{px, py}))
		}
	}
	return NewBBox(bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1), to)
}
