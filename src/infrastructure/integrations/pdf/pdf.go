package pdf

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"pdfchat/src/core/rag"
)

// Extractor reads the text layer of a PDF locally, one document per page.
type Extractor struct {
	password string
}

type Option func(e *Extractor)

func WithPassword(password string) Option {
	return func(e *Extractor) {
		e.password = password
	}
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, name string, r io.ReaderAt, size int64) ([]rag.Document, error) {
	var opts []documentloaders.PDFOptions
	if e.password != "" {
		opts = append(opts, documentloaders.WithPassword(e.password))
	}

	pages, err := documentloaders.NewPDF(r, size, opts...).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", name, err)
	}

	docs := make([]rag.Document, 0, len(pages))
	for i, p := range pages {
		if strings.TrimSpace(p.PageContent) == "" {
			continue
		}

		page := i + 1
		if n, ok := p.Metadata["page"].(int); ok {
			page = n
		}
		docs = append(docs, rag.Document{
			Content: p.PageContent,
			Metadata: map[string]string{
				rag.MetaSource: name,
				rag.MetaPage:   strconv.Itoa(page),
			},
		})
	}
	return docs, nil
}
