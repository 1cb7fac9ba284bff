package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pdfchat/src/infrastructure/integrations/openai"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(len(in)), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	})

	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"The capital ", "is ", "Paris."} {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "gpt-test",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"role": "assistant", "content": piece}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedder(t *testing.T) {
	srv := newServer(t)
	e, err := openai.NewEmbedder(openai.Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewEmbedder() error = %v", err)
	}
	if e.Model() != openai.DefaultEmbeddingModel {
		t.Errorf("Model() = %q", e.Model())
	}

	vectors, err := e.Embed(context.Background(), []string{"a", "abc"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][0] != 3 {
		t.Errorf("Embed() = %v", vectors)
	}
}

func TestChatModelStream(t *testing.T) {
	srv := newServer(t)
	m, err := openai.NewChatModel(openai.Config{APIKey: "test", BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewChatModel() error = %v", err)
	}

	var fragments []string
	err = m.Stream(context.Background(), "What is the capital of France?", func(f string) error {
		if f != "" {
			fragments = append(fragments, f)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if got := strings.Join(fragments, ""); got != "The capital is Paris." {
		t.Errorf("streamed %q", got)
	}
}
