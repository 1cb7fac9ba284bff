package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"pdfchat/src/core/rag"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 100
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits documents into overlapping segments of at most size characters.
// Lengths are counted in runes.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	splitter   textsplitter.RecursiveCharacter
}

type Option func(o *options)

type options struct {
	separators []string
}

// WithSeparators replaces the boundary preference list. The empty separator is always
// appended so that text without any break can still be cut.
func WithSeparators(separators ...string) Option {
	return func(o *options) {
		o.separators = append([]string(nil), separators...)
	}
}

func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}

	o := options{separators: DefaultSeparators}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.separators) == 0 || o.separators[len(o.separators)-1] != "" {
		o.separators = append(o.separators, "")
	}

	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: o.separators,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(o.separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Each chunk copies its document's metadata and
// records its position within the document.
func (c *Chunker) Split(docs []rag.Document) ([]rag.Chunk, error) {
	var chunks []rag.Chunk
	for _, doc := range docs {
		texts, err := c.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", doc.Source(), err)
		}

		for i, text := range texts {
			meta := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[rag.MetaChunkIndex] = strconv.Itoa(i)

			chunks = append(chunks, rag.Chunk{
				Content:  text,
				Metadata: meta,
			})
		}
	}
	return chunks, nil
}

// SplitText splits a single text. Text that already fits is returned unchanged as the only
// chunk; blank text yields no chunks.
func (c *Chunker) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}, nil
	}
	texts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := texts[:0]
	for _, t := range texts {
		if t = c.fit(t); t != "" {
			chunks = append(chunks, t)
		}
	}
	return chunks, nil
}

// fit shortens a chunk that is longer than size by dropping text from its front. The
// splitter can carry overlap one separator past the limit; the cut lands just after a
// separator where possible, keeping as much of the overlap as fits.
func (c *Chunker) fit(text string) string {
	if utf8.RuneCountInString(text) <= c.size {
		return text
	}

	best := ""
	for _, sep := range c.separators {
		if sep == "" {
			continue
		}
		for i := 0; ; {
			j := strings.Index(text[i:], sep)
			if j < 0 {
				break
			}
			i += j + len(sep)
			if rest := text[i:]; utf8.RuneCountInString(rest) <= c.size {
				if len(rest) > len(best) {
					best = rest
				}
				break
			}
		}
	}
	if best = strings.TrimSpace(best); best != "" {
		return best
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[len(runes)-c.size:]))
}
