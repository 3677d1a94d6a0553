// Package classify holds the five models the decision-boundary visualizer
// can fit, behind a closed registry keyed by model kind.
package classify

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind names a model.
type Kind string

// The supported model kinds.
const (
	DecisionTree       Kind = "DecisionTreeClassifier"
	KMeansClustering   Kind = "KMeans"
	RandomForest       Kind = "RandomForestClassifier"
	GaussianNaiveBayes Kind = "GaussianNB"
	Logistic           Kind = "LogisticRegression"
)

var kinds = []Kind{DecisionTree, KMeansClustering, RandomForest, GaussianNaiveBayes, Logistic}

// Kinds returns every supported kind in a fixed order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// InvalidModelKindError is returned for a kind outside the registry.
type InvalidModelKindError struct {
	Kind  string
	Valid []Kind
}

func (e *InvalidModelKindError) Error() string {
	names := make([]string, len(e.Valid))
	for i, k := range e.Valid {
		names[i] = string(k)
	}
	return fmt.Sprintf("classify: %q is not a valid model kind, choose one of [%s]", e.Kind, strings.Join(names, ", "))
}

// ParseKind validates a model kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := registry[k]; !ok {
		return "", &InvalidModelKindError{Kind: s, Valid: Kinds()}
	}
	return k, nil
}

// Params are the hyperparameters the registry passes to model factories.
type Params struct {
	KMeansClusters  int
	ForestTrees     int
	LogisticMaxIter int
	Seed            int64
}

// DefaultParams returns k=4 clusters, 100 trees, 200 L-BFGS iterations and
// seed 0.
func DefaultParams() Params {
	return Params{KMeansClusters: 4, ForestTrees: 100, LogisticMaxIter: 200, Seed: 0}
}

// Model is a fitted-in-place predictor over dense float features.
type Model interface {
	Fit(X [][]float64, y []int) error
	Predict(x []float64) int
}

// Clusterer is a model that ignores y when fitting; its predictions are
// cluster ids rather than classes.
type Clusterer interface {
	Model
	NumClusters() int
}

var registry = map[Kind]func(Params) Model{
	DecisionTree: func(p Params) Model {
		return NewTree(TreeOptions{Seed: p.Seed})
	},
	KMeansClustering: func(p Params) Model {
		return NewKMeans(p.KMeansClusters, p.Seed)
	},
	RandomForest: func(p Params) Model {
		return NewForest(p.ForestTrees, p.Seed)
	},
	GaussianNaiveBayes: func(Params) Model {
		return NewGaussianNB()
	},
	Logistic: func(p Params) Model {
		return NewLogisticRegression(p.LogisticMaxIter)
	},
}

// New builds an unfitted model of the given kind.
func New(kind Kind, p Params) (Model, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, &InvalidModelKindError{Kind: string(kind), Valid: Kinds()}
	}
	return factory(p), nil
}

// PredictAll predicts every row of X.
func PredictAll(m Model, X [][]float64) []int {
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = m.Predict(x)
	}
	return out
}

// Score is the accuracy of a classifier on (X, y). For a clusterer it is the
// share of rows whose label is the majority label of their cluster.
func Score(m Model, X [][]float64, y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	pred := PredictAll(m, X)
	if _, ok := m.(Clusterer); ok {
		return purity(pred, y)
	}
	hits := 0
	for i := range y {
		if pred[i] == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y))
}

func purity(clusters, y []int) float64 {
	counts := make(map[int]map[int]int)
	for i, c := range clusters {
		if counts[c] == nil {
			counts[c] = make(map[int]int)
		}
		counts[c][y[i]]++
	}
	hits := 0
	for _, byLabel := range counts {
		best := 0
		for _, n := range byLabel {
			best = max(best, n)
		}
		hits += best
	}
	return float64(hits) / float64(len(y))
}

// checkXY validates a training set and returns the feature count and the
// number of classes (codes are 0..k-1).
func checkXY(X [][]float64, y []int, needY bool) (int, int, error) {
	if len(X) == 0 {
		return 0, 0, eris.New("classify: empty training set")
	}
	if needY && len(y) != len(X) {
		return 0, 0, eris.Errorf("classify: %d rows but %d labels", len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return 0, 0, eris.New("classify: rows have no features")
	}
	for i, row := range X {
		if len(row) != p {
			return 0, 0, eris.Errorf("classify: row %d has %d features, want %d", i, len(row), p)
		}
	}
	k := 0
	for i, c := range y {
		if c < 0 {
			return 0, 0, eris.Errorf("classify: label %d is negative", i)
		}
		k = max(k, c+1)
	}
	return p, k, nil
}

// argmaxCounts returns the index of the largest count, lowest index on ties.
func argmaxCounts(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}
