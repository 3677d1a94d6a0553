// Package encode maps category strings to small integer codes.
package encode

import (
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
)

// Ordinal assigns each distinct category a code equal to its position in
// sorted order. Columns whose values all parse as numbers sort numerically.
type Ordinal struct {
	classes []string
	index   map[string]int
}

// Fit builds an encoder from the distinct values in values.
func Fit(values []string) *Ordinal {
	seen := make(map[string]struct{}, len(values))
	var classes []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}

	if nums, ok := parseAll(classes); ok {
		order := make([]int, len(classes))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case nums[a] < nums[b]:
				return -1
			case nums[a] > nums[b]:
				return 1
			}
			return compareStrings(classes[a], classes[b])
		})
		sorted := make([]string, len(classes))
		for i, j := range order {
			sorted[i] = classes[j]
		}
		classes = sorted
	} else {
		slices.Sort(classes)
	}

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &Ordinal{classes: classes, index: index}
}

// FitTransform fits an encoder on values and returns their codes.
func FitTransform(values []string) (*Ordinal, []int) {
	o := Fit(values)
	codes := make([]int, len(values))
	for i, v := range values {
		codes[i] = o.index[v]
	}
	return o, codes
}

// Transform returns the code of every value. Values unseen at Fit time are an error.
func (o *Ordinal) Transform(values []string) ([]int, error) {
	codes := make([]int, len(values))
	for i, v := range values {
		c, ok := o.index[v]
		if !ok {
			return nil, eris.Errorf("encode: unknown category %q", v)
		}
		codes[i] = c
	}
	return codes, nil
}

// Code returns the code for a single value.
func (o *Ordinal) Code(value string) (int, bool) {
	c, ok := o.index[value]
	return c, ok
}

// Decode returns the category for code.
func (o *Ordinal) Decode(code int) (string, error) {
	if code < 0 || code >= len(o.classes) {
		return "", eris.Errorf("encode: code %d out of range [0, %d)", code, len(o.classes))
	}
	return o.classes[code], nil
}

// Inverse decodes every code.
func (o *Ordinal) Inverse(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		v, err := o.Decode(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Classes returns the categories in code order.
func (o *Ordinal) Classes() []string {
	return slices.Clone(o.classes)
}

// Len returns the number of distinct categories.
func (o *Ordinal) Len() int {
	return len(o.classes)
}

func parseAll(values []string) ([]float64, bool) {
	if len(values) == 0 {
		return nil, false
	}
	nums := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		nums[i] = f
	}
	return nums, true
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
