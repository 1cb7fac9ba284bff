package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

// Increment is one fragment of the model output together with everything received so far.
type Increment struct {
	Fragment string
	Text     string
}

type Streamer struct {
	model  rag.ChatModel
	logger logr.Logger
}

func NewStreamer(model rag.ChatModel) *Streamer {
	return &Streamer{
		model:  model,
		logger: log.WithName("answer"),
	}
}

func (s *Streamer) Model() string {
	return s.model.Model()
}

// Stream starts generating an answer for prompt. The returned Stream must be drained or
// closed; closing it cancels the model call.
func (s *Streamer) Stream(ctx context.Context, prompt string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		increments: make(chan Increment),
		done:       make(chan struct{}),
		cancel:     cancel,
	}

	go func() {
		defer cancel()
		defer close(st.done)
		defer close(st.increments)

		var acc strings.Builder
		fragments := 0
		err := s.model.Stream(ctx, prompt, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			acc.WriteString(fragment)
			fragments++

			select {
			case st.increments <- Increment{Fragment: fragment, Text: acc.String()}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		st.text = acc.String()
		if err != nil {
			st.err = fmt.Errorf("%w: %w", rag.ErrModelStream, err)
			s.logger.Error(err, "answer stream failed", "model", s.model.Model(), "fragments", fragments)
			return
		}
		s.logger.V(1).Info("answer stream finished", "model", s.model.Model(), "fragments", fragments)
	}()

	return st
}

// Stream delivers the increments of one answer in arrival order.
type Stream struct {
	increments chan Increment
	done       chan struct{}
	cancel     context.CancelFunc

	// written by the producer before done is closed
	text string
	err  error
}

// Increments is closed when the model finishes, fails or the stream is closed.
func (s *Stream) Increments() <-chan Increment {
	return s.increments
}

// Err blocks until the stream has ended and reports why it failed, if it did. The error
// wraps ErrModelStream; text delivered before the failure stays valid.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Text blocks until the stream has ended and returns everything that was received.
func (s *Stream) Text() string {
	<-s.done
	return s.text
}

// Close cancels the model call and waits for the producer to stop.
func (s *Stream) Close() {
	s.cancel()
	for range s.increments {
	}
	<-s.done
}

// Wait drains the stream and returns the full answer.
func (s *Stream) Wait() (string, error) {
	for range s.increments {
	}
	return s.Text(), s.Err()
}
