package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"pdfchat/src/core/rag"
)

const DefaultIndex = "pdfchat-chunks"

// Index stores chunks as dense_vector documents and queries them with approximate kNN.
// The index mapping is created on first write, once the vector dimension is known.
type Index struct {
	es   *elasticsearch.Client
	name string

	mu      sync.Mutex
	created bool
}

func New(addresses []string, name string) (*Index, error) {
	if name == "" {
		name = DefaultIndex
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Index{es: es, name: name}, nil
}

func (i *Index) Backend() string { return "elasticsearch" }

func (i *Index) exists(ctx context.Context) (bool, error) {
	res, err := i.es.Indices.Exists([]string{i.name}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError(res)
}

func (i *Index) ensureIndex(ctx context.Context, dims int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.created {
		return nil
	}

	ok, err := i.exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		res, err := i.es.Indices.Create(i.name,
			i.es.Indices.Create.WithContext(ctx),
			i.es.Indices.Create.WithBody(bytes.NewReader(mappingBody(dims))),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return responseError(res)
		}
	}

	i.created = true
	return nil
}

func (i *Index) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := i.ensureIndex(ctx, len(chunks[0].Vector)); err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.name, err)
	}

	body, err := bulkBody(chunks)
	if err != nil {
		return err
	}
	res, err := i.es.Bulk(bytes.NewReader(body),
		i.es.Bulk.WithContext(ctx),
		i.es.Bulk.WithIndex(i.name),
		i.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res)
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string          `json:"_id"`
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}
	if out.Errors {
		for _, item := range out.Items {
			for _, r := range item {
				if len(r.Error) > 0 {
					return fmt.Errorf("failed to index %s: %s", r.ID, r.Error)
				}
			}
		}
	}
	return nil
}

func (i *Index) Query(ctx context.Context, vector []float32, k int) ([]rag.ScoredChunk, error) {
	ok, err := i.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.name),
		i.es.Search.WithBody(bytes.NewReader(searchBody(vector, k))),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(res)
	}

	return parseSearch(res.Body)
}

func (i *Index) Count(ctx context.Context) (int, error) {
	res, err := i.es.Count(i.es.Count.WithContext(ctx), i.es.Count.WithIndex(i.name))
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, responseError(res)
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to parse count response: %w", err)
	}
	return out.Count, nil
}

// Reset deletes the index; the next Upsert recreates it.
func (i *Index) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.es.Indices.Delete([]string{i.name},
		i.es.Indices.Delete.WithContext(ctx),
		i.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError(res)
	}

	i.created = false
	return nil
}

type document struct {
	Content   string            `json:"content"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding,omitempty"`
}

func mappingBody(dims int) []byte {
	b, _ := json.Marshal(map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"content":  map[string]any{"type": "text"},
				"source":   map[string]any{"type": "keyword"},
				"metadata": map[string]any{"type": "object", "enabled": false},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	})
	return b
}

// bulkBody builds an NDJSON bulk request of index actions keyed by chunk ID.
func bulkBody(chunks []rag.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		action := map[string]any{"index": map[string]any{"_id": c.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		doc := document{
			Content:   c.Content,
			Source:    c.Metadata[rag.MetaSource],
			Metadata:  c.Metadata,
			Embedding: c.Vector,
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode chunk %s: %w", c.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func searchBody(vector []float32, k int) []byte {
	b, _ := json.Marshal(map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(100, 10*k),
		},
		"_source": []string{"content", "metadata"},
	})
	return b
}

// parseSearch converts hits back to chunks. For cosine similarity Elasticsearch scores
// hits as (1 + cos) / 2; the score is mapped back to cos.
func parseSearch(r io.Reader) ([]rag.ScoredChunk, error) {
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]rag.ScoredChunk, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		results = append(results, rag.ScoredChunk{
			ID:       h.ID,
			Content:  h.Source.Content,
			Metadata: h.Source.Metadata,
			Score:    2*h.Score - 1,
		})
	}
	return results, nil
}

func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("elasticsearch: %s: %s", res.Status(), strings.TrimSpace(string(body)))
}
