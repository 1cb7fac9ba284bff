package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	DefaultURL            = "http://localhost:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultChatModel      = "llama3.2"
)

type Config struct {
	URL         string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

func newClient(cfg Config) (*api.Client, error) {
	raw := cfg.URL
	if raw == "" {
		raw = DefaultURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", raw, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return api.NewClient(base, httpClient), nil
}

// Embedder calls the Ollama /api/embed endpoint.
type Embedder struct {
	client *api.Client
	model  string
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: cfg.Model}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

// Ping checks that the server is reachable.
func (e *Embedder) Ping(ctx context.Context) error {
	return e.client.Heartbeat(ctx)
}

// ChatModel streams completions from /api/generate.
type ChatModel struct {
	client      *api.Client
	model       string
	temperature float64
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ChatModel{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (m *ChatModel) Model() string {
	return m.model
}

func (m *ChatModel) Stream(ctx context.Context, prompt string, fn func(fragment string) error) error {
	stream := true
	req := &api.GenerateRequest{
		Model:  m.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": m.temperature,
		},
	}

	err := m.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response == "" {
			return nil
		}
		return fn(resp.Response)
	})
	if err != nil {
		return fmt.Errorf("ollama generate: %w", err)
	}
	return nil
}
