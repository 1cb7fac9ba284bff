package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pdfchat/src/core/answer"
	"pdfchat/src/core/chat"
	"pdfchat/src/core/chunker"
	"pdfchat/src/core/prompt"
	"pdfchat/src/core/rag"
	"pdfchat/src/core/retriever"
	"pdfchat/src/storage/memory"
)

// wordEmbedder maps text onto a small bag-of-words space.
type wordEmbedder struct{}

var vocabulary = []string{"capital", "france", "paris", "weather", "rain"}

func (wordEmbedder) Model() string { return "bag-of-words" }

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := make([]float32, len(vocabulary)+1)
		v[len(vocabulary)] = 0.01
		for j, w := range vocabulary {
			v[j] = float32(strings.Count(t, w))
		}
		out[i] = v
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, _ := e.EmbedDocuments(ctx, []string{text})
	return out[0], nil
}

// echoModel answers with the first knowledge line mentioning Paris, or a fixed refusal.
type echoModel struct {
	prompts []string
}

func (m *echoModel) Model() string { return "echo" }

func (m *echoModel) Stream(_ context.Context, p string, fn func(string) error) error {
	m.prompts = append(m.prompts, p)
	answer := "I have no information about that."
	if strings.Contains(p, "Paris") {
		answer = "The capital of France is Paris."
	}
	for _, w := range strings.SplitAfter(answer, " ") {
		if err := fn(w); err != nil {
			return err
		}
	}
	return nil
}

func newService(t *testing.T, docs ...string) (*chat.Service, *echoModel) {
	t.Helper()
	ctx := context.Background()
	idx := memory.New()

	c, _ := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	var documents []rag.Document
	for _, d := range docs {
		documents = append(documents, rag.Document{Content: d, Metadata: map[string]string{rag.MetaSource: "doc.pdf"}})
	}
	chunks, err := c.Split(documents)
	if err != nil {
		t.Fatal(err)
	}
	for i := range chunks {
		chunks[i].ID = string(rune('a' + i))
		chunks[i].Vector, _ = wordEmbedder{}.EmbedQuery(ctx, chunks[i].Content)
	}
	if err := idx.Upsert(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	model := &echoModel{}
	svc := chat.NewService(
		retriever.New(wordEmbedder{}, idx),
		prompt.NewComposer(),
		answer.NewStreamer(model),
	)
	return svc, model
}

func TestAskEndToEnd(t *testing.T) {
	svc, model := newService(t, "The capital of France is Paris.", "Rain is expected in the weather report.")

	reply, err := svc.Ask(context.Background(), rag.Query{
		Message: "What is the capital of France?",
		History: []rag.Turn{{Role: rag.RoleUser, Content: "hello"}, {Role: rag.RoleAssistant, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	text, err := reply.Stream.Wait()
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if !strings.Contains(text, "Paris") {
		t.Errorf("answer = %q, want it to mention Paris", text)
	}
	if len(reply.Knowledge) == 0 || reply.Knowledge[0].Content != "The capital of France is Paris." {
		t.Errorf("top knowledge = %+v", reply.Knowledge)
	}
	if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "user: hello\nassistant: hi") {
		t.Errorf("model prompt missing history: %q", model.prompts)
	}
}

func TestAskEmptyIndex(t *testing.T) {
	svc, _ := newService(t)

	reply, err := svc.Ask(context.Background(), rag.Query{Message: "What is the capital of France?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(reply.Knowledge) != 0 {
		t.Errorf("knowledge = %v, want empty", reply.Knowledge)
	}
	text, err := reply.Stream.Wait()
	if err != nil || text == "" {
		t.Errorf("Wait() = %q, %v; want some answer", text, err)
	}
}

func TestAskEmptyMessage(t *testing.T) {
	svc, model := newService(t, "anything")
	if _, err := svc.Ask(context.Background(), rag.Query{Message: "   "}); !errors.Is(err, rag.ErrEmptyMessage) {
		t.Errorf("Ask() error = %v, want ErrEmptyMessage", err)
	}
	if len(model.prompts) != 0 {
		t.Error("model must not be called for an empty message")
	}
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t, "The capital of France is Paris.", "Rain is expected in the weather report.")
	got, err := svc.Search(context.Background(), "rain weather")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 || !strings.HasPrefix(got[0].Content, "Rain") {
		t.Errorf("Search() = %+v", got)
	}
}
