package classify

import (
	"math"
	"math/rand"
)

// Forest is a bagged ensemble of CART trees, each split drawing sqrt(p)
// candidate features.
type Forest struct {
	NTrees   int
	Seed     int64
	trees    []*Tree
	nClasses int
}

// NewForest returns an unfitted forest.
func NewForest(nTrees int, seed int64) *Forest {
	if nTrees <= 0 {
		nTrees = 100
	}
	return &Forest{NTrees: nTrees, Seed: seed}
}

// Fit grows every tree on its own bootstrap sample. Tree i draws from a
// source seeded with Seed+i, so the ensemble is reproducible.
func (f *Forest) Fit(X [][]float64, y []int) error {
	p, k, err := checkXY(X, y, true)
	if err != nil {
		return err
	}
	f.nClasses = k
	maxFeatures := max(1, int(math.Sqrt(float64(p))))

	f.trees = make([]*Tree, f.NTrees)
	for i := range f.trees {
		rng := rand.New(rand.NewSource(f.Seed + int64(i)))
		sample := make([]int, len(X))
		for j := range sample {
			sample[j] = rng.Intn(len(X))
		}
		tree := NewTree(TreeOptions{MaxFeatures: maxFeatures, Seed: rng.Int63()})
		if err := tree.fitIndices(X, y, sample, k); err != nil {
			return err
		}
		f.trees[i] = tree
	}
	return nil
}

// Predict returns the majority vote, lowest class on ties.
func (f *Forest) Predict(x []float64) int {
	if len(f.trees) == 0 {
		return 0
	}
	votes := make([]int, f.nClasses)
	for _, t := range f.trees {
		votes[t.Predict(x)]++
	}
	return argmaxCounts(votes)
}
