package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVector_RoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	decoded, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestDecodeVector_CorruptLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosineDistance_IdenticalVectorsAreZero(t *testing.T) {
	v := EncodeVector([]float32{1, 2, 3})
	assert.InDelta(t, 0, cosineDistance(v, v), 1e-9)
}

func TestCosineDistance_OrthogonalVectorsAreOne(t *testing.T) {
	a := EncodeVector([]float32{1, 0})
	b := EncodeVector([]float32{0, 1})
	assert.InDelta(t, 1, cosineDistance(a, b), 1e-9)
}

func TestCosineDistance_OppositeVectorsAreTwo(t *testing.T) {
	a := EncodeVector([]float32{1, 0})
	b := EncodeVector([]float32{-1, 0})
	assert.InDelta(t, 2, cosineDistance(a, b), 1e-9)
}

func TestCosineDistance_MismatchedLengthIsMaximallyDissimilar(t *testing.T) {
	a := EncodeVector([]float32{1, 2, 3})
	b := EncodeVector([]float32{1, 2})
	assert.Equal(t, float64(2), cosineDistance(a, b))
}

func TestEuclideanDistance(t *testing.T) {
	d := EuclideanDistance([]float32{0, 0}, []float32{3, 4})
	assert.InDelta(t, 5, d, 1e-9)
}

func TestDotProduct(t *testing.T) {
	p := DotProduct([]float32{1, 2, 3}, []float32{4, 5, 6})
	assert.InDelta(t, 32, p, 1e-9)
}

func TestEncodeVector_EmptyVector(t *testing.T) {
	assert.Equal(t, 0, len(EncodeVector(nil)))
}

func TestCosineDistance_BoundedByRounding(t *testing.T) {
	// A vector compared against a numerically-near-parallel copy must not
	// push the dot-product ratio outside [-1, 1] and panic sqrt of a
	// negative number; math.Float32bits round-tripping can introduce tiny
	// error that this clamps away.
	a := EncodeVector([]float32{1, 1, 1})
	b := EncodeVector([]float32{float32(1 + 1e-7), 1, 1})
	d := cosineDistance(a, b)
	assert.False(t, math.IsNaN(d))
	assert.GreaterOrEqual(t, d, 0.0)
}
