package chat

import (
	"context"
	"strings"

	"github.com/go-logr/logr"

	"pdfchat/src/core/answer"
	"pdfchat/src/core/prompt"
	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

// Retriever finds the knowledge relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (rag.Knowledge, error)
}

// Reply is an answer in progress together with what it was built from.
type Reply struct {
	Knowledge rag.Knowledge
	Prompt    prompt.Prompt
	Stream    *answer.Stream
}

// Service answers one message at a time: retrieve, compose, stream.
type Service struct {
	retriever Retriever
	composer  *prompt.Composer
	streamer  *answer.Streamer
	logger    logr.Logger
}

func NewService(retriever Retriever, composer *prompt.Composer, streamer *answer.Streamer) *Service {
	return &Service{
		retriever: retriever,
		composer:  composer,
		streamer:  streamer,
		logger:    log.WithName("chat"),
	}
}

// Ask starts answering q. The caller owns Reply.Stream and must drain or close it.
func (s *Service) Ask(ctx context.Context, q rag.Query) (*Reply, error) {
	q.Message = strings.TrimSpace(q.Message)
	if q.Message == "" {
		return nil, rag.ErrEmptyMessage
	}

	knowledge, err := s.retriever.Retrieve(ctx, q.Message)
	if err != nil {
		return nil, err
	}

	p, err := s.composer.Compose(q, knowledge)
	if err != nil {
		return nil, err
	}
	s.logger.V(1).Info("prompt composed",
		"knowledge", len(p.Knowledge),
		"history", len(p.History),
		"dropped_chunks", p.DroppedChunks,
		"dropped_turns", p.DroppedTurns,
	)

	return &Reply{
		Knowledge: p.Knowledge,
		Prompt:    p,
		Stream:    s.streamer.Stream(ctx, p.Text),
	}, nil
}

// Search returns the knowledge for query without asking the model.
func (s *Service) Search(ctx context.Context, query string) (rag.Knowledge, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rag.ErrEmptyMessage
	}
	return s.retriever.Retrieve(ctx, query)
}
