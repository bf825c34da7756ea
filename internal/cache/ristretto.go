package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache is a Cache backed by ristretto. Every entry has cost 1, so
// maxEntries bounds the number of stored values.
type RistrettoCache struct {
	cache *ristretto.Cache
}

// NewRistrettoCache creates a cache holding at most maxEntries values.
func NewRistrettoCache(maxEntries int64) (*RistrettoCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RistrettoCache{cache: c}, nil
}

func (r *RistrettoCache) Get(key string) (any, bool) {
	return r.cache.Get(key)
}

func (r *RistrettoCache) Set(key string, value any, ttl time.Duration) bool {
	return r.cache.SetWithTTL(key, value, 1, ttl)
}

func (r *RistrettoCache) Del(key string) {
	r.cache.Del(key)
}

// Wait blocks until pending sets are applied. Ristretto buffers writes, so
// readers that must observe a Set immediately call this first.
func (r *RistrettoCache) Wait() { r.cache.Wait() }

// Close stops ristretto's background goroutines.
func (r *RistrettoCache) Close() { r.cache.Close() }
