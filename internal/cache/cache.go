// Package cache provides the small TTL store used for provider metadata.
package cache

import (
	"time"
)

// Cache stores opaque values with a per-entry TTL. Implementations may drop
// entries at any time; callers must treat a miss as "fetch again".
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) bool
	Del(key string)
}
