// Package vecmath holds the distance and ranking helpers shared by the
// vector index adapters.
package vecmath

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// CosineDistance returns 1 - cos(a, b). Zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Rank sorts results by ascending distance and keeps the first topK.
// Ties are broken by chunk ID so output is deterministic.
func Rank(results []domain.SearchResult, topK int) []domain.SearchResult {
	slices.SortFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// CheckDimensions verifies every chunk carries an embedding of length dims.
func CheckDimensions(chunks []domain.Chunk, dims int) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", domain.ErrInvalidInput, c.ID)
		}
		if len(c.Embedding) != dims {
			return fmt.Errorf("%w: chunk %s has %d, index expects %d",
				domain.ErrDimensionMismatch, c.ID, len(c.Embedding), dims)
		}
	}
	return nil
}

// Encode converts a float32 slice to little-endian bytes.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode converts little-endian bytes back to a float32 slice.
func Decode(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
