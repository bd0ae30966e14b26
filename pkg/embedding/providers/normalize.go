package providers

import "math"

// Normalize scales a vector to unit L2 norm in place and returns it. Cosine
// distance over unit vectors makes similarity scores comparable across
// providers. A zero vector is returned unchanged.
func Normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := math.Sqrt(sum)
	for i, v := range vector {
		vector[i] = float32(float64(v) / norm)
	}
	return vector
}
