//go:build arm64

package rag

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude calls viant/vec's exported magnitude-aware
// cosine distance, whose name differs between arm64 and other architectures.
func cosineDistanceWithMagnitude(v search.Float32s, vec []float32, magnitude1, magnitude2 float32) float32 {
	return v.CosineDistanceWithMagnitude(vec, magnitude1, magnitude2)
}
