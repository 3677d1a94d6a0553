package normalize

import (
	"context"
	"errors"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/encode"
	"github.com/sells-group/landcover-cli/internal/geo"
	"github.com/sells-group/landcover-cli/internal/labels"
)

// ErrEmptyResult is returned when a step leaves no features.
var ErrEmptyResult = errors.New("normalize: no features left")

// Stats counts the features after each step.
type Stats struct {
	Input      int            `json:"input"`
	Dropped    int            `json:"dropped"`
	Relabeled  int            `json:"relabeled"`
	Folded     int            `json:"folded"`
	Clipped    int            `json:"clipped"`
	Output     int            `json:"output"`
	Categories map[string]int `json:"categories"`
}

// Result is the normalized collection with the encoder that produced its
// codes.
type Result struct {
	Collection *labels.Collection
	Encoder    *encode.Ordinal
	Stats      Stats
}

// Harmonize reads each source's own category field into the canonical
// category and concatenates sources in order. All sources must share a CRS.
func Harmonize(sources []*labels.Source) (*labels.Collection, error) {
	if len(sources) == 0 {
		return nil, eris.Wrap(ErrEmptyResult, "normalize: no sources")
	}
	srid := sources[0].SRID
	var features []labels.Feature
	for _, src := range sources {
		if src.SRID != srid {
			return nil, eris.Wrapf(geo.ErrSRIDMismatch, "normalize: %s is EPSG:%d, %s is EPSG:%d",
				src.Name, src.SRID, sources[0].Name, srid)
		}
		coll, err := labels.FromSource(src)
		if err != nil {
			return nil, err
		}
		features = append(features, coll.Features()...)
	}
	return labels.NewCollection(srid, features), nil
}

// Drop removes features whose category exactly matches a drop-list entry.
func Drop(coll *labels.Collection, v *Vocabulary) *labels.Collection {
	return coll.Filter(func(f labels.Feature) bool {
		return !slices.Contains(v.Drop, f.Category)
	})
}

// Relabel overwrites every category that would not end up canonical with
// the sentinel.
func Relabel(coll *labels.Collection, v *Vocabulary) *labels.Collection {
	return coll.Map(func(f labels.Feature) labels.Feature {
		if !v.survives(f.Category) {
			f.Category = v.Sentinel
		}
		return f
	})
}

// Fold applies the synonym table as whole-value replacements.
func Fold(coll *labels.Collection, v *Vocabulary) *labels.Collection {
	return coll.Map(func(f labels.Feature) labels.Feature {
		if to, ok := v.Synonyms[f.Category]; ok {
			f.Category = to
		}
		return f
	})
}

// Clip keeps the features whose geometry intersects bbox. Empty geometries
// and CRS mismatches fail the whole step.
func Clip(coll *labels.Collection, bbox geo.BBox) (*labels.Collection, error) {
	out := make([]labels.Feature, 0, coll.Len())
	for i := 0; i < coll.Len(); i++ {
		f := coll.At(i)
		ok, err := geo.Intersects(f.Geometry, bbox)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: clip feature %d from %s", i, f.Source)
		}
		if ok {
			out = append(out, f)
		}
	}
	return labels.NewCollection(coll.SRID(), out), nil
}

// Encode assigns each feature the ordinal code of its category.
func Encode(coll *labels.Collection) (*labels.Collection, *encode.Ordinal) {
	enc := encode.Fit(coll.Categories())
	return coll.Map(func(f labels.Feature) labels.Feature {
		f.Code, _ = enc.Code(f.Category)
		return f
	}), enc
}

// Verify checks that every category is in keep-list ∪ {other}.
func Verify(coll *labels.Collection, v *Vocabulary) error {
	for _, c := range coll.SortedCategories() {
		if !v.isCanonical(c) {
			return eris.Wrapf(ErrVocabulary, "normalize: category %q is not canonical", c)
		}
	}
	return nil
}

// Run harmonizes, drops, relabels, folds, clips to bbox (when non-nil) and
// encodes. Any step that empties the collection fails with ErrEmptyResult.
func Run(ctx context.Context, sources []*labels.Source, v *Vocabulary, bbox *geo.BBox) (*Result, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "normalize"))

	coll, err := Harmonize(sources)
	if err != nil {
		return nil, err
	}
	stats := Stats{Input: coll.Len()}
	if err := nonEmpty(coll, "harmonize"); err != nil {
		return nil, err
	}

	dropped := Drop(coll, v)
	stats.Dropped = coll.Len() - dropped.Len()
	if err := nonEmpty(dropped, "drop"); err != nil {
		return nil, err
	}

	relabeled := Relabel(dropped, v)
	stats.Relabeled = changed(dropped, relabeled)

	folded := Fold(relabeled, v)
	stats.Folded = changed(relabeled, folded)
	if err := Verify(folded, v); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "normalize: cancelled")
	}

	clipped := folded
	if bbox != nil {
		if clipped, err = Clip(folded, *bbox); err != nil {
			return nil, err
		}
		stats.Clipped = folded.Len() - clipped.Len()
		if err := nonEmpty(clipped, "clip"); err != nil {
			return nil, err
		}
	}

	encoded, enc := Encode(clipped)
	stats.Output = encoded.Len()
	stats.Categories = encoded.Counts()

	log.Info("labels normalized",
		zap.Int("input", stats.Input),
		zap.Int("dropped", stats.Dropped),
		zap.Int("relabeled", stats.Relabeled),
		zap.Int("clipped", stats.Clipped),
		zap.Int("output", stats.Output),
		zap.Strings("classes", enc.Classes()),
	)
	return &Result{Collection: encoded, Encoder: enc, Stats: stats}, nil
}

func nonEmpty(coll *labels.Collection, step string) error {
	if coll.Len() == 0 {
		return eris.Wrapf(ErrEmptyResult, "normalize: after %s", step)
	}
	return nil
}

func changed(before, after *labels.Collection) int {
	n := 0
	for i := 0; i < before.Len(); i++ {
		if before.At(i).Category != after.At(i).Category {
			n++
		}
	}
	return n
}
