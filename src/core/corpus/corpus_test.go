package corpus_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdfchat/src/core/corpus"
	"pdfchat/src/core/rag"
	"pdfchat/src/fsutil"
)

// pageExtractor treats every form feed separated section after the header as a page.
type pageExtractor struct{}

func (pageExtractor) Extract(_ context.Context, _ string, r io.ReaderAt, size int64) ([]rag.Document, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	body := strings.TrimPrefix(string(data), "%PDF-1.4\n")
	if strings.Contains(body, "broken") {
		return nil, errors.New("malformed xref table")
	}

	var docs []rag.Document
	for _, page := range strings.Split(body, "\f") {
		docs = append(docs, rag.Document{Content: page})
	}
	return docs, nil
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoaderLoadAll(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.pdf":      "%PDF-1.4\nThe capital of France is Paris.\fSecond page.",
		"b.pdf":      "%PDF-1.4\nbroken",
		"c.pdf":      "plain text pretending",
		"readme.txt": "ignored",
	})

	loader := corpus.NewLoader(corpus.NewDirSource(fsutil.NewLocalFileStore(), dir), pageExtractor{})
	result, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if result.Files != 1 {
		t.Errorf("Files = %d, want 1", result.Files)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(result.Documents))
	}

	first := result.Documents[0]
	if first.Content != "The capital of France is Paris." {
		t.Errorf("first page = %q", first.Content)
	}
	if first.Source() != filepath.Join(dir, "a.pdf") || first.Metadata[rag.MetaPage] != "1" {
		t.Errorf("first page metadata = %v", first.Metadata)
	}
	if result.Documents[1].Metadata[rag.MetaPage] != "2" {
		t.Errorf("second page metadata = %v", result.Documents[1].Metadata)
	}

	if len(result.Errors) != 2 {
		t.Fatalf("got %d load errors, want 2: %v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].Source != filepath.Join(dir, "b.pdf") {
		t.Errorf("first error source = %s", result.Errors[0].Source)
	}
	if !errors.Is(result.Errors[1], corpus.ErrNotPDF) {
		t.Errorf("second error = %v, want ErrNotPDF", result.Errors[1])
	}
}

func TestLoaderEmptyCorpus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	loader := corpus.NewLoader(corpus.NewDirSource(fsutil.NewLocalFileStore(), dir), pageExtractor{})

	result, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if result.Files != 0 || len(result.Documents) != 0 || len(result.Errors) != 0 {
		t.Errorf("LoadAll() = %+v, want empty", result)
	}
}

func TestDirSourcePut(t *testing.T) {
	dir := t.TempDir()
	src := corpus.NewDirSource(fsutil.NewLocalFileStore(), dir)
	ctx := context.Background()

	name, err := src.Put(ctx, "../../etc/report.pdf", strings.NewReader("%PDF-1.4\nx"), 10)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if name != filepath.Join(dir, "report.pdf") {
		t.Errorf("Put() stored at %s", name)
	}

	objects, err := src.List(ctx)
	if err != nil || len(objects) != 1 || objects[0].Name != name {
		t.Errorf("List() = %v, %v", objects, err)
	}

	if _, err := src.Put(ctx, "notes.txt", strings.NewReader("x"), 1); !errors.Is(err, corpus.ErrNotPDF) {
		t.Errorf("Put(notes.txt) error = %v, want ErrNotPDF", err)
	}
}
