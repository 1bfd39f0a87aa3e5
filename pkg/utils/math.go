package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm and returns the original norm.
// A zero vector is left unchanged (the divisor falls back to 1).
func NormalizeL2(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	div := norm
	if div == 0 {
		div = 1
	}
	for i := range x {
		x[i] /= div
	}
	return norm
}

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
