// Package labels models labeled land-cover geometries and reads and writes
// them as GeoJSON, ESRI shapefile, GeoPackage and PostGIS tables.
package labels

import (
	"maps"
	"slices"

	"github.com/twpayne/go-geom"
)

// CategoryField is the canonical attribute name for the land-cover class.
const CategoryField = "category"

// Record is one raw row of a vector file: its attributes as strings and its
// geometry.
type Record struct {
	Attributes map[string]string
	Geometry   geom.T
}

// Source is one input file awaiting harmonization. CategoryField names the
// attribute that carries the land-cover class in this particular file.
type Source struct {
	Name          string
	SRID          int
	CategoryField string
	Fields        []string
	Records       []Record
}

// HasField reports whether the source declares the named attribute.
func (s *Source) HasField(name string) bool {
	return slices.Contains(s.Fields, name)
}

// Feature is a labeled geometry after harmonization.
type Feature struct {
	Category string
	Code     int
	Geometry geom.T
	Source   string
}

// Collection is an ordered, immutable set of features in one CRS.
type Collection struct {
	features []Feature
	srid     int
}

// NewCollection copies features into a new collection.
func NewCollection(srid int, features []Feature) *Collection {
	return &Collection{features: slices.Clone(features), srid: srid}
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.features) }

// SRID returns the EPSG code shared by every geometry.
func (c *Collection) SRID() int { return c.srid }

// At returns the i-th feature.
func (c *Collection) At(i int) Feature { return c.features[i] }

// Features returns a copy of the feature slice.
func (c *Collection) Features() []Feature { return slices.Clone(c.features) }

// Categories returns the category of every feature, in order.
func (c *Collection) Categories() []string {
	out := make([]string, len(c.features))
	for i, f := range c.features {
		out[i] = f.Category
	}
	return out
}

// Counts returns the number of features per category.
func (c *Collection) Counts() map[string]int {
	out := make(map[string]int)
	for _, f := range c.features {
		out[f.Category]++
	}
	return out
}

// Filter returns a new collection holding the features keep accepts.
func (c *Collection) Filter(keep func(Feature) bool) *Collection {
	out := make([]Feature, 0, len(c.features))
	for _, f := range c.features {
		if keep(f) {
			out = append(out, f)
		}
	}
	return &Collection{features: out, srid: c.srid}
}

// Map returns a new collection with fn applied to every feature.
func (c *Collection) Map(fn func(Feature) Feature) *Collection {
	out := make([]Feature, len(c.features))
	for i, f := range c.features {
		out[i] = fn(f)
	}
	return &Collection{features: out, srid: c.srid}
}

// SortedCategories returns the distinct categories in byte order.
func (c *Collection) SortedCategories() []string {
	return slices.Sorted(maps.Keys(c.Counts()))
}
