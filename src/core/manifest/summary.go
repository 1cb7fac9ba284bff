package manifest

import (
	"context"
	"errors"
	"fmt"

	"pdfchat/src/core/rag"
	"pdfchat/src/fsutil"
)

// SourceCounter is implemented by indexes that can break their contents down per file.
type SourceCounter interface {
	Sources(ctx context.Context) (map[string]int, error)
}

// Summary describes an index as it is now.
type Summary struct {
	Backend  string         `json:"backend" yaml:"backend"`
	Chunks   int            `json:"chunks" yaml:"chunks"`
	Sources  map[string]int `json:"sources,omitempty" yaml:"sources,omitempty"`
	Manifest *Manifest      `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Corpus   *Corpus        `json:"corpus,omitempty" yaml:"corpus,omitempty"`
}

// Corpus describes the PDFs in a corpus directory, indexed or not.
type Corpus struct {
	Path  string `json:"path" yaml:"path"`
	Files int    `json:"files" yaml:"files"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// Summarize counts index and attaches its manifest, if one has been written.
func Summarize(ctx context.Context, index rag.VectorIndex, store Store) (*Summary, error) {
	count, err := index.Count(ctx)
	if err != nil {
		return nil, rag.IndexError(fmt.Errorf("failed to count %s index: %w", index.Backend(), err))
	}
	s := &Summary{Backend: index.Backend(), Chunks: count}

	if sc, ok := index.(SourceCounter); ok {
		if s.Sources, err = sc.Sources(ctx); err != nil {
			return nil, rag.IndexError(err)
		}
	}

	if store != nil {
		m, err := store.Load()
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			s.Manifest = m
		}
	}
	return s, nil
}

// Inspector summarizes one index on demand.
type Inspector struct {
	index     rag.VectorIndex
	store     Store
	files     fsutil.FileStore
	corpusDir string
}

type InspectorOption func(i *Inspector)

// WithCorpusDir adds the count and size of the PDFs under dir to every summary.
func WithCorpusDir(files fsutil.FileStore, dir string) InspectorOption {
	return func(i *Inspector) {
		i.files = files
		i.corpusDir = dir
	}
}

func NewInspector(index rag.VectorIndex, store Store, opts ...InspectorOption) *Inspector {
	i := &Inspector{index: index, store: store}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Inspector) Summary(ctx context.Context) (*Summary, error) {
	s, err := Summarize(ctx, i.index, i.store)
	if err != nil {
		return nil, err
	}
	if i.files == nil {
		return s, nil
	}

	stat, err := i.files.GetFileStats(i.corpusDir, ".pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus %s: %w", i.corpusDir, err)
	}
	s.Corpus = &Corpus{Path: i.corpusDir, Files: stat.Count, Bytes: stat.Size}
	return s, nil
}
