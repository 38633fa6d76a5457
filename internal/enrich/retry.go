package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// RetryPolicy bounds provider calls.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Observer is notified about each failed provider attempt.
type Observer interface {
	ProviderFailure(op string)
}

// Retrying decorates an Embedder and an EntityExtractor with per-call timeouts
// and exponential backoff. Either collaborator may be nil when only the other is used.
type Retrying struct {
	embedder  Embedder
	extractor EntityExtractor
	policy    RetryPolicy
	log       *slog.Logger
	observer  Observer
}

// NewRetrying wraps the given providers.
func NewRetrying(embedder Embedder, extractor EntityExtractor, policy RetryPolicy, log *slog.Logger, observer Observer) *Retrying {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrying{
		embedder:  embedder,
		extractor: extractor,
		policy:    policy,
		log:       log,
		observer:  observer,
	}
}

// Embed implements Embedder.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		v, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errors.New("empty embedding")
		}
		out = v
		return nil
	})
	return out, err
}

// Extract implements EntityExtractor.
func (r *Retrying) Extract(ctx context.Context, text string) (models.Entities, error) {
	var out models.Entities
	err := r.do(ctx, "extract entities", func(ctx context.Context) error {
		e, err := r.extractor.Extract(ctx, text)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.policy.Backoff * time.Duration(1<<uint(attempt-1))
			if r.log != nil {
				r.log.Warn("provider call failed, retrying",
					slog.String("op", op),
					slog.Any("err", lastErr),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", backoff),
				)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Unavailable(op, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr))
			}
		}

		callCtx := ctx
		cancel := func() {}
		if r.policy.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if r.observer != nil {
			r.observer.ProviderFailure(op)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Unavailable(op, lastErr)
}
