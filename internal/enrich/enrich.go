// Package enrich adapts external embedding and entity-recognition providers.
//
// Providers are reached only through the Embedder and EntityExtractor interfaces.
// Retrying bounds each call with a timeout and retries with exponential backoff;
// exhausted calls surface as ErrUnavailable.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// ErrUnavailable reports that a provider failed or timed out.
var ErrUnavailable = errors.New("enrichment unavailable")

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EntityExtractor recognises companies, sectors and regulators in text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (models.Entities, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
