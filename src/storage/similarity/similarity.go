package similarity

import (
	"math"
	"sort"

	"pdfchat/src/core/rag"
)

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts results by descending score, ties by ID, and keeps at most k.
func TopK(results []rag.ScoredChunk, k int) []rag.ScoredChunk {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
