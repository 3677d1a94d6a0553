package visualize

import "math/rand"

// Jitter returns codes offset by scale times a standard normal draw each,
// so coincident points spread out. The input is not modified.
func Jitter(codes []int, scale float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(codes))
	for i, c := range codes {
		out[i] = float64(c) + scale*rng.NormFloat64()
	}
	return out
}
