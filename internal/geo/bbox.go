// Package geo holds bounding boxes, the small set of coordinate reference
// systems label data arrives in, and geometry/bbox intersection.
package geo

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// BBox is an axis-aligned rectangle in the CRS named by SRID (an EPSG code).
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
	SRID int     `json:"srid"`
}

// NewBBox validates and returns a bbox.
func NewBBox(minX, minY, maxX, maxY float64, srid int) (BBox, error) {
	for _, v := range []float64{minX, minY, maxX, maxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BBox{}, eris.New("geo: bbox has non-finite coordinate")
		}
	}
	if minX > maxX || minY > maxY {
		return BBox{}, eris.Errorf("geo: bbox min (%g, %g) exceeds max (%g, %g)", minX, minY, maxX, maxY)
	}
	return BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, SRID: srid}, nil
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g %g %g %g] EPSG:%d", b.MinX, b.MinY, b.MaxX, b.MaxY, b.SRID)
}

// Bounds returns the bbox as go-geom bounds.
func (b BBox) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Polygon returns the closed rectangle ring as a polygon tagged with the
// bbox SRID.
func (b BBox) Polygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		b.MinX, b.MinY,
		b.MaxX, b.MinY,
		b.MaxX, b.MaxY,
		b.MinX, b.MaxY,
		b.MinX, b.MinY,
	}, []int{10}).SetSRID(b.SRID)
}

// ContainsPoint reports whether (x, y) lies inside or on the bbox.
func (b BBox) ContainsPoint(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Width and Height are the extents along each axis.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// TotalBounds returns the bbox covering every geometry. Geometries must share
// one SRID; the result carries it.
func TotalBounds(gs ...geom.T) (BBox, error) {
	bounds := geom.NewBounds(geom.XY)
	srid := 0
	for i, g := range gs {
		if g == nil || g.Empty() {
			return BBox{}, eris.Errorf("geo: geometry %d is empty", i)
		}
		if i == 0 {
			srid = g.SRID()
		} else if g.SRID() != srid {
			return BBox{}, eris.Wrapf(ErrSRIDMismatch, "geo: geometry %d has EPSG:%d, want EPSG:%d", i, g.SRID(), srid)
		}
		bounds.Extend(g)
	}
	if len(gs) == 0 || bounds.IsEmpty() {
		return BBox{}, eris.New("geo: no geometries to bound")
	}
	return NewBBox(bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1), srid)
}
