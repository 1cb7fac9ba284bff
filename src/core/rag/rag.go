package rag

import (
	"context"
	"strconv"
)

// Metadata keys carried from a Document onto each of its chunks.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
	MetaRunID      = "run_id"
)

// Document is the text of one loaded unit (a PDF page) plus where it came from.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Source returns the file or object name the document was loaded from.
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

// Chunk is a bounded slice of a Document and the unit of retrieval.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]string
	Vector   []float32
}

// ScoredChunk is a chunk returned from a similarity query. Higher Score is more similar.
type ScoredChunk struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float64
}

// Source returns the source metadata of the chunk.
func (c ScoredChunk) Source() string {
	return c.Metadata[MetaSource]
}

// Page returns the page number of the chunk, or 0 when unknown.
func (c ScoredChunk) Page() int {
	p, err := strconv.Atoi(c.Metadata[MetaPage])
	if err != nil {
		return 0
	}
	return p
}

// Knowledge is the ordered result of a retrieval, most similar first.
type Knowledge []ScoredChunk

// Texts returns the chunk contents in retrieval order.
func (k Knowledge) Texts() []string {
	texts := make([]string, len(k))
	for i, c := range k {
		texts[i] = c.Content
	}
	return texts
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query is a user message with the conversation that preceded it.
type Query struct {
	Message string
	History []Turn
}

// Embedder turns text into vectors. Implementations must preserve input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model, recorded in the index manifest.
	Model() string
}

// VectorIndex stores chunk vectors and answers nearest neighbour queries.
type VectorIndex interface {
	// Upsert inserts or replaces chunks by ID.
	Upsert(ctx context.Context, chunks []Chunk) error
	// Query returns at most k chunks ordered by descending similarity.
	Query(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
	// Reset removes every stored chunk.
	Reset(ctx context.Context) error
	// Backend names the implementation ("sqlite", "weaviate", ...).
	Backend() string
}

// ChatModel generates a completion for a single prompt, delivering text fragments
// to fn in arrival order. A non-nil error from fn aborts the generation.
type ChatModel interface {
	Stream(ctx context.Context, prompt string, fn func(fragment string) error) error
	Model() string
}
