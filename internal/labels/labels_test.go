package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func pt(x, y float64) geom.T {
	return geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(4326)
}

func TestCollection_Immutable(t *testing.T) {
	in := []Feature{
		{Category: "rice", Geometry: pt(0, 0)},
		{Category: "water", Geometry: pt(1, 1)},
		{Category: "rice", Geometry: pt(2, 2)},
	}
	c := NewCollection(4326, in)
	in[0].Category = "mutated"

	assert.Equal(t, "rice", c.At(0).Category)

	rice := c.Filter(func(f Feature) bool { return f.Category == "rice" })
	assert.Equal(t, 2, rice.Len())
	assert.Equal(t, 3, c.Len())

	upper := c.Map(func(f Feature) Feature {
		f.Category = "x" + f.Category
		return f
	})
	assert.Equal(t, []string{"xrice", "xwater", "xrice"}, upper.Categories())
	assert.Equal(t, []string{"rice", "water", "rice"}, c.Categories())

	out := c.Features()
	out[1].Category = "changed"
	assert.Equal(t, "water", c.At(1).Category)
}

func TestCollection_Counts(t *testing.T) {
	c := NewCollection(4326, []Feature{
		{Category: "water"}, {Category: "rice"}, {Category: "water"},
	})
	assert.Equal(t, map[string]int{"water": 2, "rice": 1}, c.Counts())
	assert.Equal(t, []string{"rice", "water"}, c.SortedCategories())
	assert.Equal(t, 4326, c.SRID())
}
