package embedding

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/go-logr/logr"

	"pdfchat/src/log"
)

// Retrying retries a Provider with exponential backoff. Cancellation of the caller's
// context stops retrying immediately.
type Retrying struct {
	provider        Provider
	maxRetries      uint64
	initialInterval time.Duration
	logger          logr.Logger
}

func NewRetrying(provider Provider, maxRetries uint64, initialInterval time.Duration) *Retrying {
	if initialInterval <= 0 {
		initialInterval = 500 * time.Millisecond
	}
	return &Retrying{
		provider:        provider,
		maxRetries:      maxRetries,
		initialInterval: initialInterval,
		logger:          log.WithName("embedding-retry"),
	}
}

func (r *Retrying) Model() string {
	return r.provider.Model()
}

func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	operation := func() error {
		out, err := r.provider.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		vectors = out
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		r.logger.Info("embedding request failed, retrying", "error", err.Error(), "wait", wait.String())
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}

	return vectors, nil
}
