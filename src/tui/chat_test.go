package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pdfchat/src/core/answer"
	"pdfchat/src/core/chat"
	"pdfchat/src/core/rag"
	"pdfchat/src/tui"
)

type wordsModel struct {
	words []string
	err   error
}

func (m wordsModel) Model() string { return "words" }

func (m wordsModel) Stream(_ context.Context, _ string, fn func(string) error) error {
	for _, w := range m.words {
		if err := fn(w); err != nil {
			return err
		}
	}
	return m.err
}

type fakeAsker struct {
	model   wordsModel
	queries []rag.Query
	err     error
}

func (f *fakeAsker) Ask(ctx context.Context, q rag.Query) (*chat.Reply, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &chat.Reply{Stream: answer.NewStreamer(f.model).Stream(ctx, q.Message)}, nil
}

// send types text and presses enter, then runs commands until the model settles.
func send(t *testing.T, m tea.Model, text string) tea.Model {
	t.Helper()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	for i := 0; cmd != nil; i++ {
		if i > 100 {
			t.Fatal("model did not settle")
		}
		msg := cmd()
		if msg == nil {
			break
		}
		m, cmd = m.Update(msg)
	}
	return m
}

func newModel(asker tui.Asker) tea.Model {
	m, _ := tui.New(context.Background(), asker, "pdfchat").Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func TestChatKeepsHistory(t *testing.T) {
	asker := &fakeAsker{model: wordsModel{words: []string{"Paris ", "is ", "the capital."}}}
	m := newModel(asker)

	m = send(t, m, "What is the capital of France?")
	m = send(t, m, "Are you sure?")

	if len(asker.queries) != 2 {
		t.Fatalf("asked %d times, want 2", len(asker.queries))
	}
	if len(asker.queries[0].History) != 0 {
		t.Errorf("first query carried history %v", asker.queries[0].History)
	}
	want := []rag.Turn{
		{Role: rag.RoleUser, Content: "What is the capital of France?"},
		{Role: rag.RoleAssistant, Content: "Paris is the capital."},
	}
	got := asker.queries[1].History
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("second query history = %v, want %v", got, want)
	}

	history := m.(tui.Model).History()
	if len(history) != 4 {
		t.Errorf("history has %d turns, want 4", len(history))
	}
	if !strings.Contains(m.View(), "Paris is the capital.") {
		t.Errorf("view does not show the answer:\n%s", m.View())
	}
}

func TestChatIgnoresBlankInput(t *testing.T) {
	asker := &fakeAsker{}
	m := send(t, newModel(asker), "   ")
	if len(asker.queries) != 0 {
		t.Errorf("blank input was sent")
	}
	if len(m.(tui.Model).History()) != 0 {
		t.Errorf("history should be empty")
	}
}

func TestChatShowsErrors(t *testing.T) {
	tests := []struct {
		name      string
		asker     *fakeAsker
		wantTurns int
	}{
		{
			name:  "retrieval fails",
			asker: &fakeAsker{err: rag.ErrIndex},
		},
		{
			name:      "stream fails midway",
			asker:     &fakeAsker{model: wordsModel{words: []string{"Par"}, err: errors.New("connection reset")}},
			wantTurns: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := send(t, newModel(tt.asker), "hello")
			if !strings.Contains(m.View(), "Error:") {
				t.Errorf("view does not show the error:\n%s", m.View())
			}
			if got := len(m.(tui.Model).History()); got != tt.wantTurns {
				t.Errorf("history has %d turns, want %d", got, tt.wantTurns)
			}
		})
	}
}
