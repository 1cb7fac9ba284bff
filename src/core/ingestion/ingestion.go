package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"pdfchat/src/core/chunker"
	"pdfchat/src/core/corpus"
	"pdfchat/src/core/manifest"
	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

const DefaultBatchSize = 64

var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Observer is told how far a run has got, for progress bars and job records.
type Observer interface {
	ChunksPlanned(total int)
	ChunksIndexed(n int)
}

type nopObserver struct{}

func (nopObserver) ChunksPlanned(int) {}
func (nopObserver) ChunksIndexed(int) {}

// Options select what a single run does.
type Options struct {
	// Reset empties the index and its manifest before loading.
	Reset bool
	// Files restricts the run to these corpus names. Empty means the whole corpus.
	Files []string
	// Observer receives progress; may be nil.
	Observer Observer
}

// Report summarises a finished run.
type Report struct {
	RunID          string
	Files          int
	Documents      int
	Chunks         int
	IndexTotal     int
	EmbeddingModel string
	Failed         []*rag.LoadError
	Duration       time.Duration
}

// Pipeline loads the corpus, chunks it, embeds the chunks and upserts them into the
// index. Every run gives its chunks fresh random IDs, so ingesting the same files twice
// without Reset stores them twice.
type Pipeline struct {
	loader    *corpus.Loader
	chunker   *chunker.Chunker
	embedder  rag.Embedder
	index     rag.VectorIndex
	manifests manifest.Store
	provider  string
	batchSize int
	node      *snowflake.Node

	running sync.Mutex
	logger  logr.Logger
}

type Option func(p *Pipeline)

func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithManifest records the embedding configuration next to the index and refuses to
// extend an index that was built with a different one.
func WithManifest(store manifest.Store, provider string) Option {
	return func(p *Pipeline) {
		p.manifests = store
		p.provider = provider
	}
}

func New(
	loader *corpus.Loader,
	chunker *chunker.Chunker,
	embedder rag.Embedder,
	index rag.VectorIndex,
	nodeID int64,
	opts ...Option,
) (*Pipeline, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	p := &Pipeline{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		batchSize: DefaultBatchSize,
		node:      node,
		logger:    log.WithName("ingestion"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Loader() *corpus.Loader {
	return p.loader
}

// Run performs one ingestion pass. Files that fail to load are reported and skipped.
// Only one run may be active per Pipeline at a time.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	start := time.Now()
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	report := &Report{
		RunID:          p.node.Generate().String(),
		EmbeddingModel: p.embedder.Model(),
	}
	logger := p.logger.WithValues("run_id", report.RunID)

	if opts.Reset {
		if err := p.reset(ctx); err != nil {
			return nil, err
		}
		logger.Info("index reset", "backend", p.index.Backend())
	}

	existing, err := p.loadManifest()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := existing.Check(p.provider, p.embedder.Model(), 0); err != nil {
			return nil, err
		}
	}

	var loaded *corpus.Result
	if len(opts.Files) > 0 {
		loaded, err = p.loader.Load(ctx, opts.Files)
	} else {
		loaded, err = p.loader.LoadAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	report.Files = loaded.Files
	report.Documents = len(loaded.Documents)
	report.Failed = loaded.Errors

	chunks, err := p.chunker.Split(loaded.Documents)
	if err != nil {
		return report, err
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].Metadata[rag.MetaRunID] = report.RunID
	}
	observer.ChunksPlanned(len(chunks))
	logger.Info("corpus chunked", "files", loaded.Files, "documents", len(loaded.Documents), "chunks", len(chunks))

	dims := 0
	for from := 0; from < len(chunks); from += p.batchSize {
		batch := chunks[from:min(from+p.batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return report, err
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}
		if dims == 0 {
			dims = len(vectors[0])
			if existing != nil {
				if err := existing.Check(p.provider, p.embedder.Model(), dims); err != nil {
					return report, err
				}
			}
			// The manifest must exist before the first vector is stored, so that a run
			// failing later still binds the index to this embedding model.
			if existing, err = p.saveManifest(ctx, existing, report.RunID, dims); err != nil {
				return report, err
			}
		}

		if err := p.index.Upsert(ctx, batch); err != nil {
			return report, rag.IndexError(fmt.Errorf("failed to upsert into %s index: %w", p.index.Backend(), err))
		}

		report.Chunks += len(batch)
		observer.ChunksIndexed(len(batch))
	}

	total, err := p.countIndex(ctx)
	if err != nil {
		return report, err
	}
	report.IndexTotal = total

	if report.Chunks > 0 {
		if _, err := p.saveManifest(ctx, existing, report.RunID, dims); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	logger.Info("ingestion finished",
		"chunks", report.Chunks,
		"index_total", report.IndexTotal,
		"failed_files", len(report.Failed),
		"duration", report.Duration.String(),
	)
	return report, nil
}

func (p *Pipeline) reset(ctx context.Context) error {
	if err := p.index.Reset(ctx); err != nil {
		return rag.IndexError(fmt.Errorf("failed to reset %s index: %w", p.index.Backend(), err))
	}
	if p.manifests != nil {
		return p.manifests.Remove()
	}
	return nil
}

func (p *Pipeline) loadManifest() (*manifest.Manifest, error) {
	if p.manifests == nil {
		return nil, nil
	}
	m, err := p.manifests.Load()
	if errors.Is(err, manifest.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

func (p *Pipeline) countIndex(ctx context.Context) (int, error) {
	total, err := p.index.Count(ctx)
	if err != nil {
		return 0, rag.IndexError(fmt.Errorf("failed to count %s index: %w", p.index.Backend(), err))
	}
	return total, nil
}

// saveManifest records the current embedding configuration and index size. It returns
// the manifest it wrote, or existing when the pipeline has no manifest store.
func (p *Pipeline) saveManifest(ctx context.Context, existing *manifest.Manifest, runID string, dims int) (*manifest.Manifest, error) {
	if p.manifests == nil {
		return existing, nil
	}

	total, err := p.countIndex(ctx)
	if err != nil {
		return existing, err
	}

	now := time.Now().UTC()
	m := &manifest.Manifest{
		Embedding: manifest.Embedding{
			Provider:   p.provider,
			Model:      p.embedder.Model(),
			Dimensions: dims,
		},
		Backend: p.index.Backend(),
		Chunking: manifest.Chunking{
			Size:    p.chunker.Size(),
			Overlap: p.chunker.Overlap(),
		},
		Chunks:    total,
		LastRunID: runID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		m.CreatedAt = existing.CreatedAt
	}
	if err := p.manifests.Save(m); err != nil {
		return existing, err
	}
	return m, nil
}
