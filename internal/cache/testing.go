package cache

import (
	"time"

	"github.com/redis/rueidis"
)

// NewRedisStoreForTest creates a RedisStore on the provided rueidis client (test-only).
func NewRedisStoreForTest(c rueidis.Client, prefix string, ttl time.Duration) *RedisStore {
	return newRedisStore(c, prefix, ttl)
}
