// Package cache defines the read-through cache interface shared by the
// catalog (C7) and its backends. Grounded on the teacher's
// internal/repository/cache.go Cache/DistributedLock interfaces,
// trimmed to the subset the catalog actually exercises and moved out
// of the (now superseded) repository package so it has no dependency
// on the teacher's int64-keyed store.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented read-through cache. The in-memory
// implementation lives in internal/cache/memory; a Redis-backed one
// would satisfy the same interface for multi-replica deployments.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheError is a sentinel error type for cache misses/unavailability.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)

// Keys generates cache keys for the catalog's hot read paths.
var Keys = cacheKeys{}

type cacheKeys struct{}

// BucketByName returns the cache key for a bucket looked up by its
// user-facing name (the hot path for every S3 request routing).
func (cacheKeys) BucketByName(name string) string {
	return "cache:bucket:name:" + name
}

// User returns the cache key for a user looked up by id.
func (cacheKeys) User(id string) string {
	return "cache:user:id:" + id
}
