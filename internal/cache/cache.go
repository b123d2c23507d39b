// Package cache provides the TTL key-value store backing the
// read-through layer. Keys are built deterministically from a namespace
// plus ordered parameter strings; equivalent requests always collide to
// the same key. Stores never surface errors: any backend failure
// degrades to a cache miss.
package cache

import (
	"context"
	"strings"
	"time"
)

// Store is the cache port. Values are opaque serialized payloads.
type Store interface {
	// Get returns the stored value for the key, or false on a miss.
	// A read after TTL expiry is a miss.
	Get(ctx context.Context, ns string, parts ...string) ([]byte, bool)
	// Set stores value under the key for ttl. Concurrent writers to the
	// same key overwrite last-write-wins.
	Set(ctx context.Context, ns string, value []byte, ttl time.Duration, parts ...string)
}

// Key builds the cache key "ct:<ns>:<part>:<part>...". Parameter order
// matters and must match between Get and Set call sites.
func Key(ns string, parts ...string) string {
	return "ct:" + ns + ":" + strings.Join(parts, ":")
}

// NowISO returns the UTC timestamp format used for cached_at fields.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}
