package snih

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// CachedTransport wraps a Transport with an in-memory LRU cache of response
// documents. Entries expire after ttl on the injected clock; a zero ttl keeps
// them until evicted.
type CachedTransport struct {
	inner   domain.Transport
	cache   *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

type cacheEntry struct {
	doc     []byte
	expires time.Time // zero means no expiry
}

// NewCachedTransport creates a cache decorator around a transport holding at
// most maxEntries documents.
func NewCachedTransport(inner domain.Transport, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) (*CachedTransport, error) {
	cache, err := lru.New[string, cacheEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("snih cache: %w", err)
	}
	return &CachedTransport{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}, nil
}

func (c *CachedTransport) Fetch(ctx context.Context, endpoint string, body any) ([]byte, error) {
	key, err := cacheKey(endpoint, body)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if doc, ok := c.lookup(key, now); ok {
		c.metrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
		return doc, nil
	}
	c.metrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()

	doc, err := c.inner.Fetch(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = now.Add(c.ttl)
	}
	c.cache.Add(key, cacheEntry{doc: doc, expires: expires})
	return doc, nil
}

func (c *CachedTransport) lookup(key string, now time.Time) ([]byte, bool) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !now.Before(e.expires) {
		c.cache.Remove(key)
		return nil, false
	}
	return e.doc, true
}

func cacheKey(endpoint string, body any) (string, error) {
	if body == nil {
		return endpoint, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("cache key for %s: %w", endpoint, err)
	}
	return endpoint + "|" + string(b), nil
}
