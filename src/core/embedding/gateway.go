package embedding

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

const DefaultBatchSize = 64

// Provider is a remote embedding service.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Gateway batches texts through a Provider and checks what comes back: one vector per
// text, in order, all of the same dimension. It does not retry; wrap the provider with
// NewRetrying for that.
type Gateway struct {
	provider  Provider
	batchSize int
	logger    logr.Logger
}

type Option func(g *Gateway)

func WithBatchSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

func NewGateway(provider Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  provider,
		batchSize: DefaultBatchSize,
		logger:    log.WithName("embedding"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ rag.Embedder = (*Gateway)(nil)

func (g *Gateway) Model() string {
	return g.provider.Model()
}

// EmbedDocuments embeds texts in batches, preserving order.
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dims := 0

	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		out, err := g.provider.Embed(ctx, batch)
		if err != nil {
			return nil, rag.EmbeddingError(fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err))
		}
		if len(out) != len(batch) {
			return nil, rag.EmbeddingError(fmt.Errorf("provider returned %d vectors for %d texts", len(out), len(batch)))
		}

		for i, v := range out {
			if dims == 0 {
				dims = len(v)
			}
			if len(v) == 0 || len(v) != dims {
				return nil, rag.EmbeddingError(fmt.Errorf("vector %d has dimension %d, expected %d", start+i, len(v), dims))
			}
		}

		g.logger.V(1).Info("embedded batch", "from", start, "to", end, "model", g.provider.Model())
		vectors = append(vectors, out...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
