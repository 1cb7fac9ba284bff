package elastic

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"pdfchat/src/core/rag"
)

func TestBulkBody(t *testing.T) {
	body, err := bulkBody([]rag.Chunk{
		{ID: "a", Content: "first", Vector: []float32{1, 0}, Metadata: map[string]string{rag.MetaSource: "x.pdf"}},
		{ID: "b", Content: "second", Vector: []float32{0, 1}, Metadata: map[string]string{}},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), body)
	}

	var action map[string]map[string]string
	if err := json.Unmarshal([]byte(lines[2]), &action); err != nil || action["index"]["_id"] != "b" {
		t.Errorf("action line = %s", lines[2])
	}
	var doc document
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Content != "first" || doc.Source != "x.pdf" || len(doc.Embedding) != 2 {
		t.Errorf("document line = %+v", doc)
	}
}

func TestSearchBody(t *testing.T) {
	var body map[string]any
	if err := json.Unmarshal(searchBody([]float32{0.5, 0.5}, 5), &body); err != nil {
		t.Fatal(err)
	}
	knn := body["knn"].(map[string]any)
	if knn["k"].(float64) != 5 || knn["num_candidates"].(float64) != 100 || knn["field"] != "embedding" {
		t.Errorf("knn = %v", knn)
	}
}

func TestParseSearch(t *testing.T) {
	raw := `{"hits": {"hits": [
		{"_id": "a", "_score": 1.0, "_source": {"content": "Paris", "metadata": {"source": "f.pdf", "page": "2"}}},
		{"_id": "b", "_score": 0.5, "_source": {"content": "other", "metadata": {}}}
	]}}`

	got, err := parseSearch(bytes.NewReader([]byte(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Score != 1 || got[1].Score != 0 {
		t.Fatalf("parseSearch() = %+v", got)
	}
	if got[0].Page() != 2 || got[0].Source() != "f.pdf" {
		t.Errorf("metadata = %v", got[0].Metadata)
	}
}
