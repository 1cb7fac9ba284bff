package ingestion_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pdfchat/src/core/chunker"
	"pdfchat/src/core/corpus"
	"pdfchat/src/core/ingestion"
	"pdfchat/src/core/manifest"
	"pdfchat/src/core/rag"
	"pdfchat/src/fsutil"
	"pdfchat/src/storage/memory"
)

type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, _ string, r io.ReaderAt, size int64) ([]rag.Document, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	return []rag.Document{{Content: strings.TrimPrefix(string(data), "%PDF-1.4\n")}}, nil
}

// letterEmbedder embeds text as counts of a few letters.
type letterEmbedder struct {
	model string
	calls int
	// failFrom makes every call from that call number on fail; zero never fails.
	failFrom int
}

func (e *letterEmbedder) Model() string { return e.model }

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failFrom > 0 && e.calls >= e.failFrom {
		return nil, rag.EmbeddingError(io.ErrUnexpectedEOF)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(t, "a")) + 1,
			float32(strings.Count(t, "e")),
			float32(strings.Count(t, "p")),
		}
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

type countingObserver struct {
	mu      sync.Mutex
	planned int
	indexed int
}

func (o *countingObserver) ChunksPlanned(n int) { o.planned = n }
func (o *countingObserver) ChunksIndexed(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.indexed += n
}

type fixture struct {
	dir       string
	index     *memory.Index
	manifests *manifest.FileStore
	embedder  *letterEmbedder
	pipeline  *ingestion.Pipeline
}

func newFixture(t *testing.T, files map[string]string, opts ...ingestion.Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fs := fsutil.NewLocalFileStore()
	c, err := chunker.New(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		dir:       dir,
		index:     memory.New(),
		manifests: manifest.NewFileStore(fs, t.TempDir()),
		embedder:  &letterEmbedder{model: "letters-v1"},
	}
	opts = append([]ingestion.Option{ingestion.WithManifest(f.manifests, "test")}, opts...)
	f.pipeline, err = ingestion.New(
		corpus.NewLoader(corpus.NewDirSource(fs, dir), textExtractor{}),
		c, f.embedder, f.index, 1, opts...,
	)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestRunIndexesCorpus(t *testing.T) {
	long := strings.Repeat("Paris is a city. ", 12)
	f := newFixture(t, map[string]string{
		"france.pdf": "%PDF-1.4\nThe capital of France is Paris.",
		"long.pdf":   "%PDF-1.4\n" + long,
		"bad.pdf":    "not a pdf",
	}, ingestion.WithBatchSize(2))

	obs := &countingObserver{}
	report, err := f.pipeline.Run(context.Background(), ingestion.Options{Observer: obs})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Files != 2 || report.Documents != 2 {
		t.Errorf("report files=%d documents=%d, want 2/2", report.Files, report.Documents)
	}
	if len(report.Failed) != 1 || !strings.HasSuffix(report.Failed[0].Source, "bad.pdf") {
		t.Errorf("Failed = %v", report.Failed)
	}
	if report.Chunks < 3 {
		t.Errorf("Chunks = %d, want several", report.Chunks)
	}
	if report.IndexTotal != report.Chunks {
		t.Errorf("IndexTotal = %d, Chunks = %d", report.IndexTotal, report.Chunks)
	}
	if obs.planned != report.Chunks || obs.indexed != report.Chunks {
		t.Errorf("observer planned=%d indexed=%d", obs.planned, obs.indexed)
	}
	if report.EmbeddingModel != "letters-v1" || report.RunID == "" {
		t.Errorf("report = %+v", report)
	}

	m, err := f.manifests.Load()
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if m.Embedding.Model != "letters-v1" || m.Embedding.Dimensions != 3 || m.Chunks != report.Chunks || m.Chunking.Size != 50 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestRunAssignsUniqueIDs(t *testing.T) {
	same := "%PDF-1.4\nIdentical text on every page."
	f := newFixture(t, map[string]string{"a.pdf": same, "b.pdf": same})

	report, err := f.pipeline.Run(context.Background(), ingestion.Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results, _ := f.index.Query(context.Background(), []float32{1, 0, 0}, 10)
	if len(results) != 2 || report.Chunks != 2 {
		t.Fatalf("identical chunks should both be stored, got %d", len(results))
	}
	if results[0].ID == results[1].ID {
		t.Error("chunk IDs collide")
	}
	if results[0].Metadata[rag.MetaRunID] != report.RunID {
		t.Errorf("run id metadata = %q, want %q", results[0].Metadata[rag.MetaRunID], report.RunID)
	}
}

func TestRunIsNotIdempotentWithoutReset(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "%PDF-1.4\nThe capital of France is Paris."})
	ctx := context.Background()

	first, err := f.pipeline.Run(ctx, ingestion.Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.pipeline.Run(ctx, ingestion.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if second.IndexTotal != 2*first.Chunks {
		t.Errorf("second run total = %d, want duplicates (%d)", second.IndexTotal, 2*first.Chunks)
	}
	if first.RunID == second.RunID {
		t.Error("run IDs must differ")
	}

	third, err := f.pipeline.Run(ctx, ingestion.Options{Reset: true})
	if err != nil {
		t.Fatal(err)
	}
	if third.IndexTotal != first.Chunks {
		t.Errorf("reset run total = %d, want %d", third.IndexTotal, first.Chunks)
	}
}

func TestRunEmptyCorpus(t *testing.T) {
	f := newFixture(t, nil)
	report, err := f.pipeline.Run(context.Background(), ingestion.Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Chunks != 0 || report.IndexTotal != 0 {
		t.Errorf("report = %+v", report)
	}
	if f.embedder.calls != 0 {
		t.Errorf("embedder called %d times for an empty corpus", f.embedder.calls)
	}
	if _, err := f.manifests.Load(); !errors.Is(err, manifest.ErrNotFound) {
		t.Errorf("empty run should not write a manifest, Load() error = %v", err)
	}
}

func TestRunRejectsOtherEmbeddingModel(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "%PDF-1.4\nsome text"})
	ctx := context.Background()
	if _, err := f.pipeline.Run(ctx, ingestion.Options{}); err != nil {
		t.Fatal(err)
	}

	f.embedder.model = "letters-v2"
	if _, err := f.pipeline.Run(ctx, ingestion.Options{}); !errors.Is(err, rag.ErrManifestMismatch) {
		t.Errorf("Run() error = %v, want ErrManifestMismatch", err)
	}
	if _, err := f.pipeline.Run(ctx, ingestion.Options{Reset: true}); err != nil {
		t.Errorf("Run() with reset error = %v", err)
	}
}

func TestRunFailedPartwayStillBindsModel(t *testing.T) {
	f := newFixture(t, map[string]string{
		"long.pdf": "%PDF-1.4\n" + strings.Repeat("Paris is a city. ", 20),
	}, ingestion.WithBatchSize(2))
	ctx := context.Background()

	f.embedder.failFrom = 2
	if _, err := f.pipeline.Run(ctx, ingestion.Options{}); !errors.Is(err, rag.ErrEmbeddingService) {
		t.Fatalf("Run() error = %v, want ErrEmbeddingService", err)
	}
	stored, err := f.index.Count(ctx)
	if err != nil || stored != 2 {
		t.Fatalf("index holds %d chunks (err %v), want the first batch", stored, err)
	}
	m, err := f.manifests.Load()
	if err != nil {
		t.Fatalf("manifest missing after partial run: %v", err)
	}
	if m.Embedding.Model != "letters-v1" || m.Embedding.Dimensions != 3 {
		t.Errorf("manifest = %+v", m.Embedding)
	}

	f.embedder.failFrom = 0
	f.embedder.model = "letters-v2"
	if _, err := f.pipeline.Run(ctx, ingestion.Options{}); !errors.Is(err, rag.ErrManifestMismatch) {
		t.Errorf("Run() error = %v, want ErrManifestMismatch", err)
	}
	if stored, _ := f.index.Count(ctx); stored != 2 {
		t.Errorf("mismatched run stored vectors: index holds %d", stored)
	}
}

func TestRunSelectedFiles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.pdf": "%PDF-1.4\nfirst",
		"b.pdf": "%PDF-1.4\nsecond",
	})

	report, err := f.pipeline.Run(context.Background(), ingestion.Options{Files: []string{filepath.Join(f.dir, "b.pdf")}})
	if err != nil {
		t.Fatal(err)
	}
	if report.Files != 1 || report.Chunks != 1 {
		t.Errorf("report = %+v", report)
	}
}
