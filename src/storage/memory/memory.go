package memory

import (
	"context"
	"maps"
	"sync"

	"pdfchat/src/core/rag"
	"pdfchat/src/storage/similarity"
)

// Index keeps chunks in process memory and searches them by brute force cosine similarity.
// It is lost when the process exits.
type Index struct {
	mu     sync.RWMutex
	chunks map[string]rag.Chunk
}

func New() *Index {
	return &Index{chunks: make(map[string]rag.Chunk)}
}

func (i *Index) Backend() string { return "memory" }

func (i *Index) Upsert(_ context.Context, chunks []rag.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, c := range chunks {
		c.Metadata = maps.Clone(c.Metadata)
		c.Vector = append([]float32(nil), c.Vector...)
		i.chunks[c.ID] = c
	}
	return nil
}

func (i *Index) Query(_ context.Context, vector []float32, k int) ([]rag.ScoredChunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	results := make([]rag.ScoredChunk, 0, len(i.chunks))
	for _, c := range i.chunks {
		results = append(results, rag.ScoredChunk{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: maps.Clone(c.Metadata),
			Score:    similarity.Cosine(vector, c.Vector),
		})
	}
	return similarity.TopK(results, k), nil
}

func (i *Index) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks), nil
}

func (i *Index) Reset(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = make(map[string]rag.Chunk)
	return nil
}

func (i *Index) Sources(_ context.Context) (map[string]int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	sources := make(map[string]int)
	for _, c := range i.chunks {
		sources[c.Metadata[rag.MetaSource]]++
	}
	return sources, nil
}
