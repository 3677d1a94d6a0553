package classify

import (
	"math/rand"
	"slices"
)

// TreeOptions configures a CART tree. Zero values mean unlimited depth, a
// minimum of two samples per split and every feature considered per split.
type TreeOptions struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
}

// Tree is a CART classifier splitting on gini impurity with numeric
// thresholds (x <= t goes left).
type Tree struct {
	opts     TreeOptions
	rng      *rand.Rand
	nClasses int
	root     *treeNode
}

type treeNode struct {
	leaf      bool
	class     int
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// NewTree returns an unfitted tree.
func NewTree(opts TreeOptions) *Tree {
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	return &Tree{opts: opts}
}

// Fit grows the tree on (X, y).
func (t *Tree) Fit(X [][]float64, y []int) error {
	_, k, err := checkXY(X, y, true)
	if err != nil {
		return err
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	return t.fitIndices(X, y, idx, k)
}

func (t *Tree) fitIndices(X [][]float64, y []int, idx []int, nClasses int) error {
	t.rng = rand.New(rand.NewSource(t.opts.Seed))
	t.nClasses = nClasses
	t.root = t.grow(X, y, idx, 0)
	return nil
}

// Predict walks the tree for one sample.
func (t *Tree) Predict(x []float64) int {
	n := t.root
	if n == nil {
		return 0
	}
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.class
}

// Depth returns the depth of the fitted tree; a single leaf has depth 0.
func (t *Tree) Depth() int {
	var depth func(*treeNode) int
	depth = func(n *treeNode) int {
		if n == nil || n.leaf {
			return 0
		}
		return 1 + max(depth(n.left), depth(n.right))
	}
	return depth(t.root)
}

func (t *Tree) grow(X [][]float64, y []int, idx []int, depth int) *treeNode {
	counts := make([]int, t.nClasses)
	for _, i := range idx {
		counts[y[i]]++
	}
	leaf := &treeNode{leaf: true, class: argmaxCounts(counts)}

	if counts[leaf.class] == len(idx) || len(idx) < t.opts.MinSamplesSplit {
		return leaf
	}
	if t.opts.MaxDepth > 0 && depth >= t.opts.MaxDepth {
		return leaf
	}

	// A split that does not lower impurity is still taken: XOR-like
	// layouts only separate after a zero-gain first cut.
	parent := gini(counts, len(idx))
	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	order, limit := t.featureOrder(len(X[0]))
	visited := 0
	for _, f := range order {
		// Keep looking past the limit until some feature can split.
		if visited >= limit && bestFeature >= 0 {
			break
		}
		gain, threshold, ok := bestSplit(X, y, idx, f, t.nClasses, parent)
		if !ok {
			continue
		}
		visited++
		if bestFeature < 0 || gain > bestGain {
			bestGain, bestFeature, bestThreshold = gain, f, threshold
		}
	}
	if bestFeature < 0 {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      t.grow(X, y, left, depth+1),
		right:     t.grow(X, y, right, depth+1),
	}
}

// featureOrder returns the order features are tried in and how many
// non-constant features to inspect before settling.
func (t *Tree) featureOrder(p int) ([]int, int) {
	if t.opts.MaxFeatures <= 0 || t.opts.MaxFeatures >= p {
		out := make([]int, p)
		for i := range out {
			out[i] = i
		}
		return out, p
	}
	return t.rng.Perm(p), t.opts.MaxFeatures
}

// bestSplit scans the sorted values of feature f and returns the largest
// gini decrease with its midpoint threshold.
func bestSplit(X [][]float64, y []int, idx []int, f, nClasses int, parent float64) (float64, float64, bool) {
	sorted := slices.Clone(idx)
	slices.SortStableFunc(sorted, func(a, b int) int {
		switch {
		case X[a][f] < X[b][f]:
			return -1
		case X[a][f] > X[b][f]:
			return 1
		}
		return 0
	})

	n := len(sorted)
	left := make([]int, nClasses)
	right := make([]int, nClasses)
	for _, i := range sorted {
		right[y[i]]++
	}

	bestGain, bestThreshold, found := 0.0, 0.0, false
	for pos := 0; pos < n-1; pos++ {
		c := y[sorted[pos]]
		left[c]++
		right[c]--
		v, next := X[sorted[pos]][f], X[sorted[pos+1]][f]
		if v == next {
			continue
		}
		nl, nr := pos+1, n-pos-1
		weighted := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
		if gain := parent - weighted; !found || gain > bestGain {
			bestGain, bestThreshold, found = gain, v+(next-v)/2, true
		}
	}
	return bestGain, bestThreshold, found
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}
