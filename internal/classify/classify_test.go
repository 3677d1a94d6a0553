package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns two well separated groups labelled 0 and 1.
func blobs() ([][]float64, []int) {
	X := [][]float64{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {0.5, 0.5},
		{10, 10}, {10, 11}, {11, 10}, {11, 11}, {10.5, 10.5},
	}
	y := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	return X, y
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("SVC")
	var kindErr *InvalidModelKindError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, "SVC", kindErr.Kind)
	assert.Equal(t, []Kind{DecisionTree, KMeansClustering, RandomForest, GaussianNaiveBayes, Logistic}, kindErr.Valid)
	for _, k := range Kinds() {
		assert.Contains(t, err.Error(), string(k))
	}
}

func TestNew_Unknown(t *testing.T) {
	m, err := New("Perceptron", DefaultParams())
	assert.Nil(t, m)
	var kindErr *InvalidModelKindError
	assert.ErrorAs(t, err, &kindErr)
}

func TestKinds_ReturnsCopy(t *testing.T) {
	k := Kinds()
	k[0] = "mutated"
	assert.Equal(t, DecisionTree, Kinds()[0])
}

func TestModels_SeparateBlobs(t *testing.T) {
	X, y := blobs()
	params := DefaultParams()
	params.KMeansClusters = 2
	params.ForestTrees = 15

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			m, err := New(kind, params)
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y))

			score := Score(m, X, y)
			assert.InDelta(t, 1.0, score, 1e-9)
			if kind != KMeansClustering {
				assert.Equal(t, 0, m.Predict([]float64{0.2, 0.3}))
				assert.Equal(t, 1, m.Predict([]float64{10.8, 10.1}))
			}
		})
	}
}

func TestModels_ScoreInRange(t *testing.T) {
	// Overlapping labels: no model can be perfect.
	X := [][]float64{{0, 0}, {0, 0}, {1, 1}, {1, 1}, {2, 0}, {2, 0}}
	y := []int{0, 1, 0, 1, 1, 0}
	params := DefaultParams()
	params.KMeansClusters = 3
	params.ForestTrees = 10

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			m, err := New(kind, params)
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y))
			score := Score(m, X, y)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
			assert.InDelta(t, 0.5, score, 1e-9)
		})
	}
}

func TestModels_Deterministic(t *testing.T) {
	X, y := blobs()
	for _, kind := range []Kind{KMeansClustering, RandomForest} {
		a, _ := New(kind, DefaultParams())
		b, _ := New(kind, DefaultParams())
		require.NoError(t, a.Fit(X, y))
		require.NoError(t, b.Fit(X, y))
		assert.Equal(t, PredictAll(a, X), PredictAll(b, X), kind)
	}
}

func TestFit_Errors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"empty", nil, nil},
		{"label count", [][]float64{{1}, {2}}, []int{0}},
		{"ragged", [][]float64{{1, 2}, {3}}, []int{0, 1}},
		{"no features", [][]float64{{}, {}}, []int{0, 1}},
		{"negative label", [][]float64{{1}, {2}}, []int{0, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, kind := range []Kind{DecisionTree, RandomForest, GaussianNaiveBayes, Logistic} {
				m, _ := New(kind, DefaultParams())
				assert.Error(t, m.Fit(tt.X, tt.y), kind)
			}
		})
	}
}

func TestKMeans_TooFewSamples(t *testing.T) {
	err := NewKMeans(4, 0).Fit([][]float64{{0, 0}, {1, 1}}, nil)
	assert.ErrorContains(t, err, "2 samples for 4 clusters")
}

func TestKMeans_Centroids(t *testing.T) {
	X, _ := blobs()
	m := NewKMeans(2, 0)
	require.NoError(t, m.Fit(X, nil))
	require.Len(t, m.Centroids, 2)

	a, b := m.Predict([]float64{0.5, 0.5}), m.Predict([]float64{10.5, 10.5})
	assert.NotEqual(t, a, b)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, m.Centroids[a], 1e-9)
	assert.InDeltaSlice(t, []float64{10.5, 10.5}, m.Centroids[b], 1e-9)
	assert.InDelta(t, 4.0, m.Inertia, 1e-9)
	assert.Equal(t, 2, m.NumClusters())
}

func TestPurity(t *testing.T) {
	// Cluster 7 holds labels {0,0,1}, cluster 3 holds {1}.
	assert.InDelta(t, 0.75, purity([]int{7, 7, 7, 3}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, Score(NewTree(TreeOptions{}), nil, nil), 0)
}

func TestTree_Depth(t *testing.T) {
	tree := NewTree(TreeOptions{})
	require.NoError(t, tree.Fit([][]float64{{1}, {2}, {3}}, []int{1, 1, 1}))
	assert.Equal(t, 0, tree.Depth())
	assert.Equal(t, 1, tree.Predict([]float64{100}))

	// The middle class needs two cuts.
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []int{0, 1, 1, 0}
	tree = NewTree(TreeOptions{})
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, y, PredictAll(tree, X))
	assert.Equal(t, 2, tree.Depth())

	// XOR has no useful first cut but is still separated.
	X = [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	tree = NewTree(TreeOptions{})
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, y, PredictAll(tree, X))

	shallow := NewTree(TreeOptions{MaxDepth: 1})
	require.NoError(t, shallow.Fit([][]float64{{0}, {1}, {2}, {3}}, []int{0, 1, 2, 3}))
	assert.Equal(t, 1, shallow.Depth())
}

func TestGaussianNB_ConstantFeature(t *testing.T) {
	X := [][]float64{{1, 5}, {1, 6}, {1, 20}, {1, 21}}
	y := []int{0, 0, 1, 1}
	m := NewGaussianNB()
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, 0, m.Predict([]float64{1, 5.5}))
	assert.Equal(t, 1, m.Predict([]float64{1, 19}))
}

func TestLogistic_ThreeClasses(t *testing.T) {
	X := [][]float64{
		{0, 0}, {0, 1}, {1, 0},
		{10, 0}, {10, 1}, {11, 0},
		{0, 10}, {1, 10}, {0, 11},
	}
	y := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	m := NewLogisticRegression(0)
	assert.Equal(t, 200, m.MaxIter)
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, y, PredictAll(m, X))
}

func TestLogistic_SingleClass(t *testing.T) {
	m := NewLogisticRegression(10)
	require.NoError(t, m.Fit([][]float64{{1}, {2}}, []int{0, 0}))
	assert.Equal(t, 0, m.Predict([]float64{3}))
}
