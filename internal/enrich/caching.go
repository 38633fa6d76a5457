package enrich

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/cache"
)

// Caching memoises embeddings by text so repeated queries reach the provider once.
type Caching struct {
	next  Embedder
	cache *cache.TTL[string, []float64]
}

// NewCaching wraps next with a capacity- and ttl-bounded memo.
func NewCaching(next Embedder, capacity int, ttl time.Duration) *Caching {
	return &Caching{next: next, cache: cache.New[string, []float64](capacity, ttl)}
}

// Embed implements Embedder. Callers must not modify the returned slice.
func (c *Caching) Embed(ctx context.Context, text string) ([]float64, error) {
	sum := sha1.Sum([]byte(text))
	key := hex.EncodeToString(sum[:])
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, v)
	return v, nil
}
