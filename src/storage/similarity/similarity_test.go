package similarity_test

import (
	"math"
	"testing"

	"pdfchat/src/core/rag"
	"pdfchat/src/storage/similarity"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 0}, b: []float32{5, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := similarity.Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	results := []rag.ScoredChunk{{ID: "b", Score: 0.5}, {ID: "c", Score: 0.9}, {ID: "a", Score: 0.5}}
	got := similarity.TopK(results, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("TopK() = %+v", got)
	}
}
