// Package cache provides caching implementations for Bastion decisions.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// Compile-time interface check.
var _ bastion.Cache = (*LRU)(nil)

type key struct {
	principalID string
	perm        permission.Permission
}

// LRU is a size-bounded decision cache whose entries expire after a TTL.
type LRU struct {
	cache   *lru.LRU[key, bastion.Decision]
	ttl     time.Duration
	maxSize int
}

// Option configures the LRU cache.
type Option func(*LRU)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *LRU) { c.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) Option {
	return func(c *LRU) { c.maxSize = n }
}

// NewLRU creates a new decision cache. Defaults are a 5 minute TTL and
// 10000 entries.
func NewLRU(opts ...Option) *LRU {
	c := &LRU{
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize <= 0 {
		c.maxSize = 1
	}
	c.cache = lru.NewLRU[key, bastion.Decision](c.maxSize, nil, c.ttl)
	return c
}

// Get returns a copy of the cached decision.
func (c *LRU) Get(_ context.Context, principalID string, perm permission.Permission) (*bastion.Decision, bool) {
	d, ok := c.cache.Get(key{principalID, perm})
	if !ok {
		return nil, false
	}
	return &d, true
}

// Set stores a decision in the cache.
func (c *LRU) Set(_ context.Context, principalID string, perm permission.Permission, d *bastion.Decision) {
	if d == nil {
		return
	}
	c.cache.Add(key{principalID, perm}, *d)
}

// InvalidatePrincipal removes all cached decisions for a principal.
func (c *LRU) InvalidatePrincipal(_ context.Context, principalID string) {
	for _, k := range c.cache.Keys() {
		if k.principalID == principalID {
			c.cache.Remove(k)
		}
	}
}

// Purge removes every cached decision.
func (c *LRU) Purge(_ context.Context) { c.cache.Purge() }

// Len returns the number of live entries.
func (c *LRU) Len() int { return c.cache.Len() }
