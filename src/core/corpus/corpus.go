package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-logr/logr"

	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

// Object is one file of the corpus.
type Object struct {
	Name string
	Size int64
}

// Source lists and opens corpus files. Names are whatever the source uses to address a
// file (a path, an object key) and end up as the chunk source metadata.
type Source interface {
	List(ctx context.Context) ([]Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Location describes the source for logs ("data", "s3://bucket").
	Location() string
}

// Uploader is a Source that accepts new files.
type Uploader interface {
	Source
	Put(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}

// Extractor turns one file into page documents.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.ReaderAt, size int64) ([]rag.Document, error)
}

var ErrNotPDF = errors.New("not a PDF file")

type Loader struct {
	source    Source
	extractor Extractor
	logger    logr.Logger
}

func NewLoader(source Source, extractor Extractor) *Loader {
	return &Loader{
		source:    source,
		extractor: extractor,
		logger:    log.WithName("corpus"),
	}
}

func (l *Loader) Source() Source {
	return l.source
}

// Result is the outcome of loading a set of files. Failed files are reported in Errors
// and do not stop the others from loading.
type Result struct {
	Documents []rag.Document
	Files     int
	Errors    []*rag.LoadError
}

// LoadAll loads every file the source lists.
func (l *Loader) LoadAll(ctx context.Context) (*Result, error) {
	objects, err := l.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus %s: %w", l.source.Location(), err)
	}

	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.Name
	}
	return l.Load(ctx, names)
}

// Load loads the named files in order.
func (l *Loader) Load(ctx context.Context, names []string) (*Result, error) {
	result := &Result{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		docs, err := l.loadFile(ctx, name)
		if err != nil {
			l.logger.Error(err, "skipping corpus file", "source", name)
			result.Errors = append(result.Errors, &rag.LoadError{Source: name, Err: err})
			continue
		}

		result.Files++
		result.Documents = append(result.Documents, docs...)
		l.logger.V(1).Info("loaded corpus file", "source", name, "pages", len(docs))
	}

	return result, nil
}

func (l *Loader) loadFile(ctx context.Context, name string) ([]rag.Document, error) {
	rc, err := l.source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}

	docs, err := l.extractor.Extract(ctx, name, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]string)
		}
		docs[i].Metadata[rag.MetaSource] = name
		if docs[i].Metadata[rag.MetaPage] == "" {
			docs[i].Metadata[rag.MetaPage] = strconv.Itoa(i + 1)
		}
	}
	return docs, nil
}
