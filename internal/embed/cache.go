package embed

import (
	"context"
	"crypto/sha256"
	"sync"
)

// Cached wraps a provider with an in-memory cache keyed by the SHA-256 of the
// text. Identical chunks are embedded once per process.
type Cached struct {
	Provider

	mu    sync.Mutex
	byKey map[[sha256.Size]byte][]float32
	hits  int
}

// NewCached returns p with caching.
func NewCached(p Provider) *Cached {
	return &Cached{Provider: p, byKey: make(map[[sha256.Size]byte][]float32)}
}

// Embed returns a cached vector or calls the wrapped provider.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := sha256.Sum256([]byte(text))

	c.mu.Lock()
	if v, ok := c.byKey[key]; ok {
		c.hits++
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byKey[key] = v
	c.mu.Unlock()
	return v, nil
}

// Hits returns the number of cache hits.
func (c *Cached) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
