package classify

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is multinomial (softmax) regression with an L2 penalty
// of strength 1 on the weights, fitted with L-BFGS.
type LogisticRegression struct {
	MaxIter int

	nClasses int
	nFeat    int
	// theta holds k rows of p weights followed by k intercepts.
	theta []float64
}

// NewLogisticRegression returns an unfitted model.
func NewLogisticRegression(maxIter int) *LogisticRegression {
	if maxIter <= 0 {
		maxIter = 200
	}
	return &LogisticRegression{MaxIter: maxIter}
}

// Fit minimises the penalised cross-entropy from a zero start.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	p, k, err := checkXY(X, y, true)
	if err != nil {
		return err
	}
	m.nClasses, m.nFeat = k, p
	if k < 2 {
		m.theta = make([]float64, k*(p+1))
		return nil
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			return m.loss(theta, X, y, nil)
		},
		Grad: func(grad, theta []float64) {
			m.loss(theta, X, y, grad)
		},
	}
	res, err := optimize.Minimize(problem, make([]float64, k*(p+1)),
		&optimize.Settings{MajorIterations: m.MaxIter}, &optimize.LBFGS{})
	if res == nil {
		return eris.Wrap(err, "classify: logistic regression")
	}
	if err != nil {
		// L-BFGS reports line-search stalls at the optimum as errors; the
		// location is still the best found.
		zap.L().Debug("classify: l-bfgs stopped early", zap.Error(err), zap.String("status", res.Status.String()))
	}
	m.theta = res.X
	return nil
}

// loss returns the objective at theta and, when grad is non-nil, stores its
// gradient there.
func (m *LogisticRegression) loss(theta []float64, X [][]float64, y []int, grad []float64) float64 {
	k, p := m.nClasses, m.nFeat
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	scores := make([]float64, k)
	total := 0.0
	for i, x := range X {
		m.scores(theta, x, scores)
		lse := floats.LogSumExp(scores)
		total += lse - scores[y[i]]
		if grad == nil {
			continue
		}
		for c := 0; c < k; c++ {
			diff := math.Exp(scores[c] - lse)
			if c == y[i] {
				diff--
			}
			floats.AddScaled(grad[c*p:(c+1)*p], diff, x)
			grad[k*p+c] += diff
		}
	}
	w := theta[:k*p]
	total += 0.5 * floats.Dot(w, w)
	if grad != nil {
		floats.Add(grad[:k*p], w)
	}
	return total
}

func (m *LogisticRegression) scores(theta, x, out []float64) {
	k, p := m.nClasses, m.nFeat
	for c := 0; c < k; c++ {
		out[c] = floats.Dot(theta[c*p:(c+1)*p], x) + theta[k*p+c]
	}
}

// Predict returns the class with the highest score.
func (m *LogisticRegression) Predict(x []float64) int {
	if m.nClasses < 2 || m.theta == nil {
		return 0
	}
	scores := make([]float64, m.nClasses)
	m.scores(m.theta, x, scores)
	return floats.MaxIdx(scores)
}
