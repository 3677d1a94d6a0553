package classify

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// varSmoothing is added to every variance as a share of the largest feature
// variance, keeping constant features from producing zero variances.
const varSmoothing = 1e-9

// GaussianNB models each feature as an independent normal per class.
type GaussianNB struct {
	logPrior []float64
	mean     [][]float64
	variance [][]float64
}

// NewGaussianNB returns an unfitted model.
func NewGaussianNB() *GaussianNB { return &GaussianNB{} }

// Fit estimates class priors and per-class feature means and population
// variances.
func (m *GaussianNB) Fit(X [][]float64, y []int) error {
	p, k, err := checkXY(X, y, true)
	if err != nil {
		return err
	}

	column := make([]float64, len(X))
	maxVar := 0.0
	for f := 0; f < p; f++ {
		for i, row := range X {
			column[i] = row[f]
		}
		_, v := stat.PopMeanVariance(column, nil)
		maxVar = math.Max(maxVar, v)
	}
	epsilon := math.Max(varSmoothing*maxVar, varSmoothing)

	byClass := make([][]int, k)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}

	m.logPrior = make([]float64, k)
	m.mean = make([][]float64, k)
	m.variance = make([][]float64, k)
	for c, rows := range byClass {
		m.mean[c] = make([]float64, p)
		m.variance[c] = make([]float64, p)
		if len(rows) == 0 {
			m.logPrior[c] = math.Inf(-1)
			continue
		}
		m.logPrior[c] = math.Log(float64(len(rows)) / float64(len(X)))
		values := make([]float64, len(rows))
		for f := 0; f < p; f++ {
			for j, i := range rows {
				values[j] = X[i][f]
			}
			mu, v := stat.PopMeanVariance(values, nil)
			m.mean[c][f] = mu
			m.variance[c][f] = v + epsilon
		}
	}
	return nil
}

// Predict returns the class with the highest joint log likelihood.
func (m *GaussianNB) Predict(x []float64) int {
	best, bestLL := 0, math.Inf(-1)
	for c, prior := range m.logPrior {
		if math.IsInf(prior, -1) {
			continue
		}
		ll := prior
		for f, v := range x {
			d := v - m.mean[c][f]
			ll -= 0.5*math.Log(2*math.Pi*m.variance[c][f]) + d*d/(2*m.variance[c][f])
		}
		if ll > bestLL {
			best, bestLL = c, ll
		}
	}
	return best
}
