package resolver

import (
	"context"
	"log/slog"
	"sync"
)

// Store persists resolutions beyond the lifetime of a Cache.
type Store interface {
	Get(ctx context.Context, class, uri string) (string, bool, error)
	Put(ctx context.Context, class, uri, canonical string) error
}

// Cache memoizes successful resolutions keyed by range class, then URI.
// Failed resolutions are never cached.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]string

	resolvers map[string]Resolver
	fallback  Resolver
	store     Store
	logger    *slog.Logger
}

// NewCache creates a cache. fallback resolves URIs of classes without a
// dedicated resolver; store may be nil.
func NewCache(fallback Resolver, store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:   make(map[string]map[string]string),
		resolvers: make(map[string]Resolver),
		fallback:  fallback,
		store:     store,
		logger:    logger,
	}
}

// Use installs a dedicated resolver for class.
func (c *Cache) Use(class string, r Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvers[class] = r
}

// Resolve returns the canonical URI for uri in the context of class.
func (c *Cache) Resolve(ctx context.Context, class, uri string) (string, error) {
	c.mu.RLock()
	canonical, ok := c.entries[class][uri]
	r := c.resolvers[class]
	c.mu.RUnlock()
	if ok {
		return canonical, nil
	}

	if c.store != nil {
		canonical, ok, err := c.store.Get(ctx, class, uri)
		if err != nil {
			c.logger.Warn("Resolution store lookup failed", "class", class, "uri", uri, "error", err)
		} else if ok {
			c.remember(class, uri, canonical)
			return canonical, nil
		}
	}

	if r == nil {
		r = c.fallback
	}
	if r == nil {
		return uri, nil
	}
	canonical, err := r.Resolve(ctx, uri)
	if err != nil {
		return "", err
	}
	c.remember(class, uri, canonical)
	if c.store != nil {
		if err := c.store.Put(ctx, class, uri, canonical); err != nil {
			c.logger.Warn("Resolution store write failed", "class", class, "uri", uri, "error", err)
		}
	}
	return canonical, nil
}

func (c *Cache) remember(class, uri, canonical string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[class]
	if !ok {
		m = make(map[string]string)
		c.entries[class] = m
	}
	m[uri] = canonical
	m[canonical] = canonical
}

// Len returns the number of cached entries for class.
func (c *Cache) Len(class string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[class])
}
