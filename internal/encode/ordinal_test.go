package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_SortedOrder(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{
			name:   "strings sort lexically",
			values: []string{"Rice", "Corn", "Wheat", "Rice"},
			want:   []string{"Corn", "Rice", "Wheat"},
		},
		{
			name:   "case sensitive byte order",
			values: []string{"water", "Other", "urban"},
			want:   []string{"Other", "urban", "water"},
		},
		{
			name:   "numbers sort numerically",
			values: []string{"10", "9", "1.5", "100"},
			want:   []string{"1.5", "9", "10", "100"},
		},
		{
			name:   "mixed falls back to lexical",
			values: []string{"10", "b", "9"},
			want:   []string{"10", "9", "b"},
		},
		{
			name:   "empty",
			values: nil,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Fit(tt.values)
			got := o.Classes()
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFitTransform_RoundTrip(t *testing.T) {
	values := []string{"rice", "other", "water", "rice", "urban", "water"}
	o, codes := FitTransform(values)
	require.Len(t, codes, len(values))

	decoded, err := o.Inverse(codes)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)

	// Same string always maps to the same code.
	assert.Equal(t, codes[0], codes[3])
	assert.Equal(t, codes[2], codes[5])
	assert.Equal(t, 4, o.Len())
}

func TestTransform_UnknownCategory(t *testing.T) {
	o := Fit([]string{"a", "b"})
	_, err := o.Transform([]string{"a", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "c"`)
}

func TestDecode_OutOfRange(t *testing.T) {
	o := Fit([]string{"a"})
	_, err := o.Decode(1)
	require.Error(t, err)
	_, err = o.Decode(-1)
	require.Error(t, err)

	v, err := o.Decode(0)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestCode(t *testing.T) {
	o := Fit([]string{"b", "a"})
	c, ok := o.Code("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = o.Code("z")
	assert.False(t, ok)
}

func TestClasses_ReturnsCopy(t *testing.T) {
	o := Fit([]string{"a", "b"})
	c := o.Classes()
	c[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, o.Classes())
}
