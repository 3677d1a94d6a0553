// Package normalize harmonizes land-cover labels from heterogeneous field
// surveys into one canonical vocabulary.
package normalize

import (
	"errors"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// OtherCategory is the canonical catch-all category.
const OtherCategory = "other"

// DefaultSentinel is the value non-kept categories are relabeled to before
// synonym folding lowers it to OtherCategory.
const DefaultSentinel = "Other"

// ErrVocabulary marks an invalid vocabulary or a category that escaped it.
var ErrVocabulary = errors.New("normalize: vocabulary violation")

// Vocabulary is the canonical category set plus the rules that map survey
// answers onto it.
type Vocabulary struct {
	Keep     []string          `yaml:"keep" json:"keep"`
	Drop     []string          `yaml:"drop" json:"drop"`
	Synonyms map[string]string `yaml:"synonyms" json:"synonyms"`
	Sentinel string            `yaml:"sentinel" json:"sentinel"`
}

// DefaultVocabulary returns the built-in land-cover vocabulary.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Keep: []string{
			"rice", "maize", "cassava", "cropland", "forest", "grassland",
			"shrubland", "water", "urban", "bare_soil", "wetland",
		},
		Drop: []string{"Don't know", "dont_know", "not_sure", "no_answer", "", "N/A", "none"},
		Synonyms: map[string]string{
			"water_body":     "water",
			"large_building": "urban",
			"small_building": "urban",
			"built_up":       "urban",
			"trees":          "forest",
			DefaultSentinel:  OtherCategory,
		},
		Sentinel: DefaultSentinel,
	}
}

// LoadVocabulary reads a YAML vocabulary. An empty path returns the default.
// Missing keys in the file keep their default values.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read vocabulary %s", path)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes YAML on top of the defaults and validates it.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	v := DefaultVocabulary()
	var file Vocabulary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "normalize: parse vocabulary")
	}
	if file.Keep != nil {
		v.Keep = file.Keep
	}
	if file.Drop != nil {
		v.Drop = file.Drop
	}
	if file.Synonyms != nil {
		v.Synonyms = file.Synonyms
	}
	if file.Sentinel != "" {
		v.Sentinel = file.Sentinel
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Marshal encodes the vocabulary as YAML.
func (v *Vocabulary) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(v)
	return out, eris.Wrap(err, "normalize: marshal vocabulary")
}

// Validate checks that the rules can only produce canonical categories.
// Synonyms of non-canonical values may point anywhere; relabeling decides
// whether they survive.
func (v *Vocabulary) Validate() error {
	if len(v.Keep) == 0 {
		return eris.Wrap(ErrVocabulary, "normalize: keep-list is empty")
	}
	if v.Sentinel == "" {
		return eris.Wrap(ErrVocabulary, "normalize: sentinel is empty")
	}
	var problems []string
	for _, d := range v.Drop {
		if v.isKept(d) {
			problems = append(problems, "\""+d+"\" is both kept and dropped")
		}
	}
	// Relabel sends a synonym whose target is not kept to the sentinel, so
	// only a canonical category folding out of the set can break the result.
	for _, from := range slices.Sorted(maps.Keys(v.Synonyms)) {
		to := v.Synonyms[from]
		if v.isCanonical(from) && !v.isCanonical(to) {
			problems = append(problems, "synonym \""+from+"\" -> \""+to+"\" leaves the keep-list")
		}
	}
	if v.Sentinel != OtherCategory && v.Synonyms[v.Sentinel] != OtherCategory {
		problems = append(problems, "sentinel \""+v.Sentinel+"\" does not fold to \""+OtherCategory+"\"")
	}
	if len(problems) > 0 {
		return eris.Wrapf(ErrVocabulary, "normalize: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (v *Vocabulary) isKept(c string) bool {
	return slices.Contains(v.Keep, c)
}

// isCanonical reports whether c is a final category.
func (v *Vocabulary) isCanonical(c string) bool {
	return c == OtherCategory || v.isKept(c)
}

// survives reports whether relabeling leaves c alone: it is kept, it is
// already the catch-all, or its synonym is kept.
func (v *Vocabulary) survives(c string) bool {
	if v.isCanonical(c) {
		return true
	}
	to, ok := v.Synonyms[c]
	return ok && v.isKept(to)
}

// Canonical returns the sorted set keep-list ∪ {other}.
func (v *Vocabulary) Canonical() []string {
	out := slices.Clone(v.Keep)
	if !slices.Contains(out, OtherCategory) {
		out = append(out, OtherCategory)
	}
	slices.Sort(out)
	return out
}
