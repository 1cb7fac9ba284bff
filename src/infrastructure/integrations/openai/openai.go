package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4.1-mini"
	DefaultTemperature    = 0.5
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature applies to chat models only.
	Temperature float64
	HTTPClient  *http.Client
}

func newLLM(cfg Config, extra ...lcopenai.Option) (*lcopenai.LLM, error) {
	opts := []lcopenai.Option{lcopenai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, lcopenai.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, extra...)

	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return llm, nil
}

// Embedder calls an OpenAI compatible embeddings endpoint.
type Embedder struct {
	llm   *lcopenai.LLM
	model string
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	llm, err := newLLM(cfg, lcopenai.WithEmbeddingModel(cfg.Model))
	if err != nil {
		return nil, err
	}
	return &Embedder{llm: llm, model: cfg.Model}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	return vectors, nil
}

// ChatModel streams completions from an OpenAI compatible chat endpoint.
type ChatModel struct {
	llm         *lcopenai.LLM
	model       string
	temperature float64
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	llm, err := newLLM(cfg, lcopenai.WithModel(cfg.Model))
	if err != nil {
		return nil, err
	}
	return &ChatModel{llm: llm, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (m *ChatModel) Model() string {
	return m.model
}

// Stream sends prompt as a single user message. Every request stands alone; any
// conversation history has to be part of the prompt.
func (m *ChatModel) Stream(ctx context.Context, prompt string, fn func(fragment string) error) error {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	_, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(m.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("openai chat: %w", err)
	}
	return nil
}
