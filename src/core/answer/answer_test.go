package answer_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"pdfchat/src/core/answer"
	"pdfchat/src/core/rag"
)

type scriptedModel struct {
	fragments []string
	failAfter int // fail once this many fragments were sent, -1 to never fail
}

func (m *scriptedModel) Model() string { return "scripted" }

func (m *scriptedModel) Stream(ctx context.Context, _ string, fn func(string) error) error {
	for i, f := range m.fragments {
		if i == m.failAfter {
			return io.ErrUnexpectedEOF
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// endlessModel emits fragments until its context is cancelled.
type endlessModel struct {
	stopped chan struct{}
}

func (m *endlessModel) Model() string { return "endless" }

func (m *endlessModel) Stream(ctx context.Context, _ string, fn func(string) error) error {
	defer close(m.stopped)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn("tok "); err != nil {
			return err
		}
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	fragments := []string{"The ", "capital ", "", "is ", "Paris."}
	s := answer.NewStreamer(&scriptedModel{fragments: fragments, failAfter: -1})
	st := s.Stream(context.Background(), "prompt")

	var got []string
	var last string
	for inc := range st.Increments() {
		got = append(got, inc.Fragment)
		if !strings.HasPrefix(inc.Text, last) || inc.Text != last+inc.Fragment {
			t.Errorf("increment text %q does not extend %q by %q", inc.Text, last, inc.Fragment)
		}
		last = inc.Text
	}

	if err := st.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if strings.Join(got, "") != strings.Join(fragments, "") {
		t.Errorf("fragments = %q", got)
	}
	if len(got) != 4 {
		t.Errorf("empty fragments should be skipped, got %d increments", len(got))
	}
	if st.Text() != "The capital is Paris." || last != st.Text() {
		t.Errorf("Text() = %q, last increment %q", st.Text(), last)
	}
}

func TestStreamFailureKeepsPartialText(t *testing.T) {
	s := answer.NewStreamer(&scriptedModel{fragments: []string{"a", "b", "c"}, failAfter: 2})
	text, err := s.Stream(context.Background(), "prompt").Wait()

	if !errors.Is(err, rag.ErrModelStream) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Wait() error = %v", err)
	}
	if text != "ab" {
		t.Errorf("partial text = %q, want %q", text, "ab")
	}
}

func TestStreamCloseCancelsModel(t *testing.T) {
	m := &endlessModel{stopped: make(chan struct{})}
	st := answer.NewStreamer(m).Stream(context.Background(), "prompt")

	<-st.Increments()
	<-st.Increments()
	st.Close()

	select {
	case <-m.stopped:
	case <-time.After(time.Second):
		t.Fatal("model call was not cancelled")
	}
	if !errors.Is(st.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", st.Err())
	}
}

func TestStreamParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &endlessModel{stopped: make(chan struct{})}
	st := answer.NewStreamer(m).Stream(ctx, "prompt")

	<-st.Increments()
	cancel()

	_, err := st.Wait()
	if !errors.Is(err, rag.ErrModelStream) {
		t.Errorf("Wait() error = %v", err)
	}
}
