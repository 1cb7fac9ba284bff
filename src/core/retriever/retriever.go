package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"pdfchat/src/core/manifest"
	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

const DefaultK = 5

type Retriever struct {
	embedder rag.Embedder
	index    rag.VectorIndex
	k        int

	manifests manifest.Store
	provider  string

	logger logr.Logger
}

type Option func(r *Retriever)

func WithK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithManifest makes every retrieval check that the index was built by the same
// embedding provider and model. An index without a manifest is not checked.
func WithManifest(store manifest.Store, provider string) Option {
	return func(r *Retriever) {
		r.manifests = store
		r.provider = provider
	}
}

func New(embedder rag.Embedder, index rag.VectorIndex, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		k:        DefaultK,
		logger:   log.WithName("retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns at most K chunks for query, most similar first. Equal scores are
// ordered by chunk ID. No similarity threshold is applied.
func (r *Retriever) Retrieve(ctx context.Context, query string) (rag.Knowledge, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := r.checkManifest(len(vector)); err != nil {
		return nil, err
	}

	results, err := r.index.Query(ctx, vector, r.k)
	if err != nil {
		return nil, rag.IndexError(fmt.Errorf("failed to query %s index: %w", r.index.Backend(), err))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > r.k {
		results = results[:r.k]
	}

	r.logger.V(1).Info("retrieved knowledge", "k", r.k, "found", len(results))
	return rag.Knowledge(results), nil
}

func (r *Retriever) checkManifest(dims int) error {
	if r.manifests == nil {
		return nil
	}

	m, err := r.manifests.Load()
	if errors.Is(err, manifest.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.Check(r.provider, r.embedder.Model(), dims)
}
