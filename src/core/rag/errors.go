package rag

import (
	"errors"
	"fmt"
)

var (
	ErrEmbeddingService = errors.New("embedding service error")
	ErrIndex            = errors.New("vector index error")
	ErrModelStream      = errors.New("model stream error")
	ErrManifestMismatch = errors.New("index was built with a different embedding configuration")
	ErrPromptTooLarge   = errors.New("prompt exceeds the configured budget")
	ErrEmptyMessage     = errors.New("message is empty")
)

// LoadError reports a corpus file that could not be read or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// EmbeddingError wraps err so that errors.Is(err, ErrEmbeddingService) holds.
func EmbeddingError(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingService, err)
}

// IndexError wraps err so that errors.Is(err, ErrIndex) holds.
func IndexError(err error) error {
	if err == nil || errors.Is(err, ErrIndex) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIndex, err)
}
