package types

import (
	"time"
)

// CacheStore is the bounded key→value store owned by the service.
// The store exclusively owns its entries; a Set replaces an entry
// wholesale, never mutating one in place.
type CacheStore interface {
	LifecycleManager
	// Get returns the live value for key and refreshes its recency.
	// A TTL-expired entry is purged and reported as absent.
	Get(key string) (interface{}, bool)
	// Set inserts or replaces. ttl <= 0 applies the store default.
	Set(key string, value interface{}, ttl time.Duration) error
	// Has reports liveness without touching recency order.
	Has(key string) bool
	Delete(key string) bool
	Clear()
	// Len counts resident entries. Expired-but-unpurged entries are
	// included until a read or sweep removes them.
	Len() int
	// Sweep purges expired entries and returns how many were removed.
	Sweep() int
	Stats() CacheStats
}

type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Entries   int    `json:"entries"`
}

type CacheEntry struct {
	Key        string        `json:"key"`
	Value      interface{}   `json:"value"`
	TTL        time.Duration `json:"ttl"`
	InsertedAt time.Time     `json:"inserted_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}
