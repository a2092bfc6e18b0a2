package render

import (
	"context"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// DefaultCacheSize is the number of conversions kept by NewCache when size <= 0.
const DefaultCacheSize = 4096

type cacheKey struct {
	digest  [blake2b.Size256]byte
	format  Format
	options string
}

// Cache memoizes a Converter with a bounded LRU. Failures are not cached.
// A Cache belongs to one run; call Purge when the run ends.
type Cache struct {
	next    Converter
	options string
	lru     *lru.Cache[cacheKey, string]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache wraps next. options distinguishes converter configurations that
// would produce different output for the same text.
func NewCache(next Converter, options string, size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	l, _ := lru.New[cacheKey, string](size)
	return &Cache{next: next, options: options, lru: l}
}

// Convert implements Converter.
func (c *Cache) Convert(ctx context.Context, text string, to Format) (string, error) {
	key := cacheKey{digest: blake2b.Sum256([]byte(text)), format: to, options: c.options}
	if out, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return out, nil
	}
	c.misses.Add(1)

	out, err := c.next.Convert(ctx, text, to)
	if err != nil {
		return "", err
	}
	c.lru.Add(key, out)
	return out, nil
}

// Len returns the number of cached conversions.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached conversion and logs the hit ratio.
func (c *Cache) Purge() {
	slog.Debug("render cache purged", "entries", c.lru.Len(), "hits", c.hits.Load(), "misses", c.misses.Load())
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
