package sqlite_test

import (
	"context"
	"sync"
	"testing"

	"pdfchat/src/core/rag"
	"pdfchat/src/storage/sqlite"
)

func openIndex(t *testing.T, dir string) *sqlite.Index {
	t.Helper()
	idx, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := openIndex(t, dir)
	err := idx.Upsert(ctx, []rag.Chunk{
		{ID: "1", Content: "The capital of France is Paris.", Vector: []float32{1, 0, 0},
			Metadata: map[string]string{rag.MetaSource: "data/france.pdf", rag.MetaPage: "1"}},
		{ID: "2", Content: "Berlin is the capital of Germany.", Vector: []float32{0, 1, 0},
			Metadata: map[string]string{rag.MetaSource: "data/germany.pdf", rag.MetaPage: "3"}},
		{ID: "3", Content: "Lyon is in France.", Vector: []float32{0.8, 0.1, 0},
			Metadata: map[string]string{rag.MetaSource: "data/france.pdf", rag.MetaPage: "2"}},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	idx.Close()

	reopened := openIndex(t, dir)
	got, err := reopened.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("Query() = %+v", got)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v, %v", got[0].Score, got[1].Score)
	}
	if got[1].Page() != 2 || got[1].Source() != "data/france.pdf" {
		t.Errorf("metadata = %v", got[1].Metadata)
	}

	sources, err := reopened.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if sources["data/france.pdf"] != 2 || sources["data/germany.pdf"] != 1 {
		t.Errorf("Sources() = %v", sources)
	}
}

func TestIndexUpsertReplacesAndReset(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, t.TempDir())

	chunk := rag.Chunk{ID: "same", Content: "v1", Vector: []float32{1}, Metadata: map[string]string{}}
	if err := idx.Upsert(ctx, []rag.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	chunk.Content = "v2"
	if err := idx.Upsert(ctx, []rag.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}

	if n, err := idx.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
	got, _ := idx.Query(ctx, []float32{1}, 5)
	if len(got) != 1 || got[0].Content != "v2" {
		t.Errorf("Query() = %+v", got)
	}

	if err := idx.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("Count() after Reset = %d", n)
	}
}

func TestIndexConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, t.TempDir())
	if err := idx.Upsert(ctx, []rag.Chunk{{ID: "a", Content: "a", Vector: []float32{1, 1}, Metadata: map[string]string{}}}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := idx.Query(ctx, []float32{1, 0}, 5); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Query() error = %v", err)
	}
}
