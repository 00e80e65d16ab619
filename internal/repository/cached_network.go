package repository

import (
	"context"
	"maps"
	"time"

	"github.com/patrickmn/go-cache"
)

const networkKey = "servers"

// CachedNetwork serves GetList from an in-process snapshot for ttl.
type CachedNetwork struct {
	src   NetworkRepository
	ttl   time.Duration
	cache *cache.Cache
}

// NewCachedNetwork wraps src. A zero ttl disables caching.
func NewCachedNetwork(src NetworkRepository, ttl time.Duration) *CachedNetwork {
	return &CachedNetwork{src: src, ttl: ttl, cache: cache.New(ttl, 2*ttl)}
}

// GetList returns a copy of the cached directory, loading it on a miss.
func (c *CachedNetwork) GetList(ctx context.Context) (map[string]string, error) {
	if c.ttl <= 0 {
		return c.src.GetList(ctx)
	}
	if v, ok := c.cache.Get(networkKey); ok {
		return maps.Clone(v.(map[string]string)), nil
	}
	list, err := c.src.GetList(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(networkKey, maps.Clone(list), cache.DefaultExpiration)
	return list, nil
}

// Invalidate drops the snapshot so the next GetList hits the source.
func (c *CachedNetwork) Invalidate() { c.cache.Delete(networkKey) }
