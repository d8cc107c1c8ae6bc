package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

// EncodeVector packs a float32 slice into the little-endian BLOB layout
// stored in F32_BLOB(D) columns.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a F32_BLOB(D) column back into a float32 slice.
// Any length not a multiple of 4 bytes is a corrupt/foreign blob.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, &eeserrors.ParseError{Column: "embedding", Message: fmt.Sprintf("blob length %d is not a multiple of 4", len(blob))}
	}
	n := len(blob) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// cosineDistance computes cosine distance (1 - cosine similarity) over two
// packed float32 blobs, in [0, 2]. Registered as the SQL scalar function
// `cosine_distance`. Mismatched lengths or zero-magnitude vectors return 2
// (maximally dissimilar) rather than erroring, since SQL scalar functions
// cannot propagate typed errors to the caller.
func cosineDistance(blob1, blob2 []byte) float64 {
	v1, err1 := DecodeVector(blob1)
	v2, err2 := DecodeVector(blob2)
	if err1 != nil || err2 != nil || len(v1) != len(v2) || len(v1) == 0 {
		return 2
	}

	var dot, mag1, mag2 float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dot += a * b
		mag1 += a * a
		mag2 += b * b
	}
	if mag1 == 0 || mag2 == 0 {
		return 2
	}

	similarity := dot / (math.Sqrt(mag1) * math.Sqrt(mag2))
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity
}

// EuclideanDistance and DotProduct are computed in the application layer
// (internal/repository) for the fallback search path's corrected-metric
// diagnostics; they operate on decoded vectors, not packed blobs.

func EuclideanDistance(v1, v2 []float32) float64 {
	var sum float64
	for i := range v1 {
		d := float64(v1[i]) - float64(v2[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func DotProduct(v1, v2 []float32) float64 {
	var sum float64
	for i := range v1 {
		sum += float64(v1[i]) * float64(v2[i])
	}
	return sum
}
