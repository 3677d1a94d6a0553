package visualize

import (
	"slices"

	"github.com/sells-group/landcover-cli/internal/classify"
)

// pad widens each feature range on both sides so edge points sit inside
// the surface.
const pad = 0.5

// Surface is a model's predicted class over a regular grid. It satisfies
// plotter.GridXYZ with columns along x and rows along y.
type Surface struct {
	xs, ys []float64
	// class[r][c] is the prediction at (xs[c], ys[r]).
	class [][]int
}

// ComputeSurface predicts every point of an n×n grid spanning
// [xmin-0.5, xmax+0.5] × [ymin-0.5, ymax+0.5].
func ComputeSurface(m classify.Model, xmin, xmax, ymin, ymax float64, n int) *Surface {
	s := &Surface{
		xs: linspace(xmin-pad, xmax+pad, n),
		ys: linspace(ymin-pad, ymax+pad, n),
	}
	s.class = make([][]int, n)
	point := make([]float64, 2)
	for r, y := range s.ys {
		row := make([]int, n)
		for c, x := range s.xs {
			point[0], point[1] = x, y
			row[c] = m.Predict(point)
		}
		s.class[r] = row
	}
	return s
}

// Dims returns the column and row counts.
func (s *Surface) Dims() (c, r int) { return len(s.xs), len(s.ys) }

// Z returns the predicted class at column c, row r.
func (s *Surface) Z(c, r int) float64 { return float64(s.class[r][c]) }

// X returns the x coordinate of column c.
func (s *Surface) X(c int) float64 { return s.xs[c] }

// Y returns the y coordinate of row r.
func (s *Surface) Y(r int) float64 { return s.ys[r] }

// Class returns the predicted class at column c, row r.
func (s *Surface) Class(c, r int) int { return s.class[r][c] }

// Classes returns the distinct predicted classes in ascending order.
func (s *Surface) Classes() []int {
	seen := make(map[int]bool)
	var out []int
	for _, row := range s.class {
		for _, v := range row {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	slices.Sort(out)
	return out
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo + (hi-lo)/2
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
