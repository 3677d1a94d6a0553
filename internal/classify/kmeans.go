package classify

import (
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// KMeans defaults: ten k-means++ restarts of at most 300 Lloyd iterations.
const (
	kmeansInits   = 10
	kmeansMaxIter = 300
)

// KMeans clusters rows into K groups. Labels passed to Fit are ignored.
type KMeans struct {
	K         int
	Seed      int64
	Centroids [][]float64
	Inertia   float64
}

// NewKMeans returns an unfitted clusterer.
func NewKMeans(k int, seed int64) *KMeans {
	if k <= 0 {
		k = 4
	}
	return &KMeans{K: k, Seed: seed}
}

// NumClusters returns K.
func (m *KMeans) NumClusters() int { return m.K }

// Fit keeps the lowest-inertia result of several k-means++ seeded runs.
func (m *KMeans) Fit(X [][]float64, _ []int) error {
	if _, _, err := checkXY(X, nil, false); err != nil {
		return err
	}
	if len(X) < m.K {
		return eris.Errorf("classify: %d samples for %d clusters", len(X), m.K)
	}

	rng := rand.New(rand.NewSource(m.Seed))
	m.Inertia = math.Inf(1)
	for run := 0; run < kmeansInits; run++ {
		centroids := initPlusPlus(X, m.K, rng)
		inertia := lloyd(X, centroids)
		if inertia < m.Inertia {
			m.Inertia, m.Centroids = inertia, centroids
		}
	}
	return nil
}

// Predict returns the nearest centroid.
func (m *KMeans) Predict(x []float64) int {
	best, _ := nearest(x, m.Centroids)
	return best
}

func nearest(x []float64, centroids [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for k, c := range centroids {
		if d := sqDist(x, c); d < bestD {
			best, bestD = k, d
		}
	}
	return best, bestD
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// initPlusPlus picks centers with probability proportional to the squared
// distance from the nearest center chosen so far.
func initPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{clone(X[rng.Intn(len(X))])}
	d2 := make([]float64, len(X))
	for len(centroids) < k {
		for i, x := range X {
			_, d2[i] = nearest(x, centroids)
		}
		total := floats.Sum(d2)
		pick := rng.Intn(len(X))
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					pick = i
					break
				}
			}
		}
		centroids = append(centroids, clone(X[pick]))
	}
	return centroids
}

// lloyd iterates assignment and update steps in place and returns the final
// inertia. A cluster that loses all its points keeps its centroid.
func lloyd(X [][]float64, centroids [][]float64) float64 {
	p := len(X[0])
	assign := make([]int, len(X))
	for i := range assign {
		assign[i] = -1
	}
	var inertia float64
	for it := 0; it < kmeansMaxIter; it++ {
		changed := false
		inertia = 0
		for i, x := range X {
			k, d := nearest(x, centroids)
			inertia += d
			if assign[i] != k {
				assign[i], changed = k, true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for k := range sums {
			sums[k] = make([]float64, p)
		}
		for i, x := range X {
			floats.Add(sums[assign[i]], x)
			counts[assign[i]]++
		}
		for k := range centroids {
			if counts[k] > 0 {
				floats.ScaleTo(centroids[k], 1/float64(counts[k]), sums[k])
			}
		}
	}
	return inertia
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
