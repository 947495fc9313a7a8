// Package hydrate fetches full records for vector hits.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Payload is a record's fields keyed by name.
type Payload map[string]any

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Fetcher loads one record.
type Fetcher interface {
	Fetch(ctx context.Context, id, entityType string) (Payload, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id, entityType string) (Payload, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id, entityType string) (Payload, error) {
	return f(ctx, id, entityType)
}

// DefaultCacheSize bounds the hydrated-record cache.
const DefaultCacheSize = 1000

// Cached memoizes successful fetches in an LRU. Errors are never cached.
// Concurrent misses on one key may both reach the inner fetcher; the last
// write wins.
type Cached struct {
	inner  Fetcher
	cache  *lru.Cache[string, Payload]
	logger *slog.Logger
}

// NewCached wraps inner with a cache of size entries.
func NewCached(inner Fetcher, size int, logger *slog.Logger) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Payload](size)
	if err != nil {
		return nil, fmt.Errorf("create hydration cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: cache, logger: logger.With("component", "hydrate")}, nil
}

// Fetch implements Fetcher. The returned payload is a copy.
func (c *Cached) Fetch(ctx context.Context, id, entityType string) (Payload, error) {
	key := entityType + "\x00" + id
	if p, ok := c.cache.Get(key); ok {
		return p.Clone(), nil
	}
	p, err := c.inner.Fetch(ctx, id, entityType)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p.Clone())
	c.logger.DebugContext(ctx, "record_hydrated", slog.String("entity_type", entityType), slog.String("id", id))
	return p, nil
}

// Len returns the number of cached records.
func (c *Cached) Len() int { return c.cache.Len() }
