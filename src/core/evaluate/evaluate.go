package evaluate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-logr/logr"

	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

// maxLineSize bounds a single JSON line of the dataset.
const maxLineSize = 4 * 1024 * 1024

// Case is one line of an evaluation dataset.
type Case struct {
	Query  string    `json:"query"`
	Golden []PageRef `json:"golden"`
}

// PageRef points at a page that should be retrieved for a query. It is written in the
// dataset as a two element array: ["report.pdf", 3].
type PageRef struct {
	Source string
	Page   int
}

func (r *PageRef) UnmarshalJSON(data []byte) error {
	var temp []interface{}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	if len(temp) != 2 {
		return fmt.Errorf("page reference must have exactly 2 elements")
	}

	source, ok := temp[0].(string)
	if !ok {
		return fmt.Errorf("first element must be a string")
	}
	page, ok := temp[1].(float64)
	if !ok {
		return fmt.Errorf("second element must be a number")
	}

	r.Source = source
	r.Page = int(page)
	return nil
}

// matches compares by file name so datasets need not know the corpus root.
func (r PageRef) matches(c rag.ScoredChunk) bool {
	return filepath.Base(r.Source) == filepath.Base(c.Source()) && r.Page == c.Page()
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) (rag.Knowledge, error)
}

// Result aggregates retrieval quality over a dataset.
type Result struct {
	Cases   int
	Skipped int
	// Recall is the mean share of golden pages found in the results.
	Recall float64
	// HitRate is the share of cases with at least one golden page in the results.
	HitRate float64
	// MRR is the mean reciprocal rank of the first golden page.
	MRR float64
}

type Evaluator struct {
	retriever Retriever
	logger    logr.Logger
}

func New(retriever Retriever) *Evaluator {
	return &Evaluator{
		retriever: retriever,
		logger:    log.WithName("evaluate"),
	}
}

// Run reads JSON lines from r and scores the retriever on each. Lines that cannot be
// parsed, and cases without golden pages, are skipped.
func (e *Evaluator) Run(ctx context.Context, r io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	result := &Result{}
	var recall, hits, rr float64

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var c Case
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			e.logger.Info("skipping unparsable case", "line", line, "error", err.Error())
			result.Skipped++
			continue
		}
		if c.Query == "" || len(c.Golden) == 0 {
			result.Skipped++
			continue
		}

		knowledge, err := e.retriever.Retrieve(ctx, c.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve for line %d: %w", line, err)
		}

		found, firstRank := score(c.Golden, knowledge)
		recall += float64(found) / float64(len(c.Golden))
		if firstRank > 0 {
			hits++
			rr += 1 / float64(firstRank)
		}
		result.Cases++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	if result.Cases > 0 {
		n := float64(result.Cases)
		result.Recall = recall / n
		result.HitRate = hits / n
		result.MRR = rr / n
	}
	return result, nil
}

// score returns how many golden pages appear in knowledge and the 1-based rank of the
// first result matching any golden page, 0 if none does.
func score(golden []PageRef, knowledge rag.Knowledge) (found, firstRank int) {
	for _, g := range golden {
		for _, c := range knowledge {
			if g.matches(c) {
				found++
				break
			}
		}
	}

	for i, c := range knowledge {
		for _, g := range golden {
			if g.matches(c) {
				return found, i + 1
			}
		}
	}
	return found, 0
}
