package visualize

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landcover-cli/internal/classify"
	"github.com/sells-group/landcover-cli/internal/table"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleOptions(kind classify.Kind) Options {
	opts := DefaultOptions()
	opts.Kind = kind
	opts.GridSize = 40
	opts.Params.ForestTrees = 10
	opts.Rand = rand.New(rand.NewSource(1))
	return opts
}

func TestVisualize_DecisionTreeSample(t *testing.T) {
	var img, out bytes.Buffer
	opts := sampleOptions(classify.DecisionTree)
	opts.Output = &img
	opts.Stdout = &out

	res, err := Visualize(context.Background(), table.Sample(), opts)
	require.NoError(t, err)

	// (Corn, Arid) is both Mexico and USA; every other point is separable.
	assert.InDelta(t, 11.0/12.0, res.Score, 1e-12)
	assert.Equal(t, "Accuracy: 0.9166666666666666\n", out.String())
	assert.Equal(t, []string{"India", "Japan", "Mexico", "USA"}, res.Classes)
	assert.True(t, bytes.HasPrefix(img.Bytes(), pngMagic))

	c, r := res.Surface.Dims()
	assert.Equal(t, 40, c)
	assert.Equal(t, 40, r)
	// Staple Food codes span 0..2, Climate codes 0..3.
	assert.InDelta(t, -0.5, res.Surface.X(0), 1e-12)
	assert.InDelta(t, 2.5, res.Surface.X(c-1), 1e-12)
	assert.InDelta(t, -0.5, res.Surface.Y(0), 1e-12)
	assert.InDelta(t, 3.5, res.Surface.Y(r-1), 1e-12)
}

func TestVisualize_AllKinds(t *testing.T) {
	for _, kind := range classify.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			var img bytes.Buffer
			opts := sampleOptions(kind)
			opts.Output = &img

			res, err := Visualize(context.Background(), table.Sample(), opts)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 1.0)
			assert.Equal(t, kind, res.Kind)
			assert.True(t, bytes.HasPrefix(img.Bytes(), pngMagic))
		})
	}
}

func TestVisualize_SurfaceIgnoresJitter(t *testing.T) {
	run := func(seed int64, jitter float64) *Surface {
		opts := sampleOptions(classify.DecisionTree)
		opts.Output = &bytes.Buffer{}
		opts.Jitter = jitter
		opts.Rand = rand.New(rand.NewSource(seed))
		res, err := Visualize(context.Background(), table.Sample(), opts)
		require.NoError(t, err)
		return res.Surface
	}
	assert.Equal(t, run(1, 0.2), run(99, 5))
}

func TestVisualize_InvalidKind(t *testing.T) {
	dir := t.TempDir()
	opts := sampleOptions("SVC")
	opts.OutputPath = filepath.Join(dir, "out.png")

	_, err := Visualize(context.Background(), table.Sample(), opts)
	var kindErr *classify.InvalidModelKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Len(t, kindErr.Valid, 5)
	assert.NoFileExists(t, opts.OutputPath)
}

func TestVisualize_InvalidColumn(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		column string
	}{
		{"x", func(o *Options) { o.FeatureX = "Altitude" }, "Altitude"},
		{"y", func(o *Options) { o.FeatureY = "Soil" }, "Soil"},
		{"target", func(o *Options) { o.Target = "Continent" }, "Continent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			opts := sampleOptions(classify.DecisionTree)
			opts.OutputPath = filepath.Join(dir, "out.png")
			tt.modify(&opts)

			_, err := Visualize(context.Background(), table.Sample(), opts)
			var colErr *table.InvalidColumnError
			require.ErrorAs(t, err, &colErr)
			assert.Equal(t, tt.column, colErr.Column)
			assert.Equal(t, table.Sample().Columns(), colErr.Available)
			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestVisualize_OutputPath(t *testing.T) {
	dir := t.TempDir()
	opts := sampleOptions(classify.GaussianNaiveBayes)
	opts.OutputPath = filepath.Join(dir, "boundary.svg")

	_, err := Visualize(context.Background(), table.Sample(), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}

func TestVisualize_Errors(t *testing.T) {
	opts := sampleOptions(classify.DecisionTree)
	_, err := Visualize(context.Background(), table.Sample(), opts)
	assert.ErrorContains(t, err, "no output path or writer")

	opts.Output = &bytes.Buffer{}
	opts.Format = "bmp"
	_, err = Visualize(context.Background(), table.Sample(), opts)
	assert.ErrorContains(t, err, "unsupported image format")

	opts.Format = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Visualize(ctx, table.Sample(), opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisualize_NumericColumns(t *testing.T) {
	tbl, err := table.New(
		[]string{"alcohol", "malic_acid", "target"},
		[][]string{
			{"14.2", "1.7", "0"}, {"13.2", "1.78", "0"}, {"13.16", "2.36", "0"},
			{"12.37", "0.94", "1"}, {"12.33", "1.1", "1"}, {"12.64", "1.36", "1"},
			{"12.86", "1.35", "2"}, {"12.88", "2.99", "2"}, {"12.81", "2.31", "2"},
		},
	)
	require.NoError(t, err)

	opts := sampleOptions(classify.RandomForest)
	opts.FeatureX, opts.FeatureY, opts.Target = "alcohol", "malic_acid", "target"
	opts.Output = &bytes.Buffer{}

	res, err := Visualize(context.Background(), tbl, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, res.Classes)
	c, _ := res.Surface.Dims()
	assert.InDelta(t, 8.5, res.Surface.X(c-1), 1e-12)
}

func TestJitter(t *testing.T) {
	codes := []int{0, 1, 2, 3}
	assert.Equal(t, []float64{0, 1, 2, 3}, Jitter(codes, 0, rand.New(rand.NewSource(1))))

	a := Jitter(codes, 0.2, rand.New(rand.NewSource(7)))
	b := Jitter(codes, 0.2, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
	for i, v := range a {
		assert.InDelta(t, float64(codes[i]), v, 1.5)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, codes)
}

func TestComputeSurface(t *testing.T) {
	tree := classify.NewTree(classify.TreeOptions{})
	require.NoError(t, tree.Fit([][]float64{{0, 0}, {1, 0}}, []int{0, 1}))

	s := ComputeSurface(tree, 0, 1, 0, 0, 5)
	c, r := s.Dims()
	assert.Equal(t, 5, c)
	assert.Equal(t, 5, r)
	assert.Equal(t, []float64{-0.5, 0, 0.5, 1, 1.5}, []float64{s.X(0), s.X(1), s.X(2), s.X(3), s.X(4)})
	assert.Equal(t, 0, s.Class(0, 0))
	assert.Equal(t, 1, s.Class(4, 4))
	assert.Equal(t, float64(1), s.Z(4, 0))
	assert.Equal(t, []int{0, 1}, s.Classes())
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "1.0", FormatScore(1))
	assert.Equal(t, "0.0", FormatScore(0))
	assert.Equal(t, "0.5", FormatScore(0.5))
	assert.Equal(t, "0.9166666666666666", FormatScore(11.0/12.0))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(&Scene{})
	assert.ErrorContains(t, err, "no surface")

	tree := classify.NewTree(classify.TreeOptions{})
	require.NoError(t, tree.Fit([][]float64{{0, 0}}, []int{0}))
	_, err = Build(&Scene{Surface: ComputeSurface(tree, 0, 0, 0, 0, 3), X: []float64{1}})
	assert.ErrorContains(t, err, "differ in length")
}

func TestNewHeatMap_ClassColours(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		s := &Surface{xs: []float64{0, 1}, ys: []float64{0}, class: [][]int{{0, n - 1}}}
		heat := newHeatMap(s, n)
		pal := heat.Palette.Colors()
		require.Len(t, pal, len(rainbow(n, 1).Colors()))

		ps := float64(len(pal)-1) / (heat.Max - heat.Min)
		for k := 0; k < n; k++ {
			idx := int((float64(k)-heat.Min)*ps + 0.5)
			assert.Equal(t, k, idx, "n=%d class %d", n, k)
		}
	}
}
