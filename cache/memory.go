package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateRunning
)

const (
	MaxTTL = 24 * time.Hour
)

// MemoryStore is a bounded LRU store with per-entry TTL. Expiry is checked
// lazily on read; Sweep purges in bulk. All operations are O(1) amortized
// (hash map plus doubly-linked recency list).
type MemoryStore struct {
	logger     types.Logger
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	// order holds *types.CacheEntry values, most recently used at the front.
	order *list.List

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
	state     atomic.Value
}

type MemoryOption func(*MemoryStore)

// WithClock substitutes the time source, for TTL tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

func NewMemoryStore(logger types.Logger, config *types.CacheConfig, opts ...MemoryOption) (*MemoryStore, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}
	if config.Capacity < 1 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "cache capacity %d", config.Capacity)
	}
	if config.DefaultTTL <= 0 {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "cache default ttl %v", config.DefaultTTL)
	}

	store := &MemoryStore{
		logger:     logger,
		capacity:   config.Capacity,
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
		entries:    make(map[string]*list.Element, config.Capacity),
		order:      list.New(),
	}
	store.state.Store(MemoryStateStopped)

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

func (m *MemoryStore) Start() error {
	if !m.state.CompareAndSwap(MemoryStateStopped, MemoryStateRunning) {
		m.logger.Warn("Memory store is already running")
		return types.ErrServiceAlreadyRunning
	}

	m.logger.Info("Memory store started",
		zap.Int("capacity", m.capacity),
		zap.Duration("default_ttl", m.defaultTTL))
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.state.CompareAndSwap(MemoryStateRunning, MemoryStateStopped) {
		m.logger.Warn("Memory store is not running")
		return types.ErrServiceNotRunning
	}

	m.mu.Lock()
	cleared := len(m.entries)
	m.entries = make(map[string]*list.Element)
	m.order.Init()
	m.mu.Unlock()

	m.logger.Info("Memory store stopped", zap.Int("cleared_entries", cleared))
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.state.Load().(MemoryState) == MemoryStateRunning
}

// Get returns the live value for key and marks it most recently used.
// Recency is refreshed; the TTL deadline is not.
func (m *MemoryStore) Get(key string) (interface{}, bool) {
	now := m.now()

	m.mu.Lock()
	elem, exists := m.entries[key]
	if !exists {
		m.mu.Unlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*types.CacheEntry)
	if now.After(entry.ExpiresAt) {
		m.removeLocked(key, elem)
		m.mu.Unlock()
		atomic.AddUint64(&m.expired, 1)
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	m.order.MoveToFront(elem)
	value := entry.Value
	m.mu.Unlock()

	atomic.AddUint64(&m.hits, 1)
	return value, true
}

// Set inserts or replaces the entry for key. A replace swaps the entry
// wholesale; entries are never mutated in place. When a new key would
// exceed capacity, the least recently used entry is evicted first.
func (m *MemoryStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		m.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := m.now()
	entry := &types.CacheEntry{
		Key:        key,
		Value:      value,
		TTL:        ttl,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.entries[key]; exists {
		elem.Value = entry
		m.order.MoveToFront(elem)
		return nil
	}

	if len(m.entries) >= m.capacity {
		m.evictOldestLocked()
	}

	m.entries[key] = m.order.PushFront(entry)
	return nil
}

// Has reports liveness without refreshing recency order.
func (m *MemoryStore) Has(key string) bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.entries[key]
	if !exists {
		return false
	}

	entry := elem.Value.(*types.CacheEntry)
	if now.After(entry.ExpiresAt) {
		m.removeLocked(key, elem)
		atomic.AddUint64(&m.expired, 1)
		return false
	}

	return true
}

func (m *MemoryStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.entries[key]
	if !exists {
		return false
	}

	m.removeLocked(key, elem)
	return true
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]*list.Element)
	m.order.Init()
	m.mu.Unlock()
}

// Len counts resident entries, including expired ones not yet purged by a
// read or sweep.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep purges expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var victims []string
	for key, elem := range m.entries {
		if now.After(elem.Value.(*types.CacheEntry).ExpiresAt) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		m.removeLocked(key, m.entries[key])
	}
	m.mu.Unlock()

	if len(victims) > 0 {
		atomic.AddUint64(&m.expired, uint64(len(victims)))
		m.logger.Debug("Sweep completed", zap.Int("expired_entries", len(victims)))
	}

	return len(victims)
}

func (m *MemoryStore) Stats() types.CacheStats {
	m.mu.Lock()
	entries := len(m.entries)
	m.mu.Unlock()

	return types.CacheStats{
		Hits:      atomic.LoadUint64(&m.hits),
		Misses:    atomic.LoadUint64(&m.misses),
		Evictions: atomic.LoadUint64(&m.evictions),
		Expired:   atomic.LoadUint64(&m.expired),
		Entries:   entries,
	}
}

func (m *MemoryStore) evictOldestLocked() {
	back := m.order.Back()
	if back == nil {
		return
	}

	entry := back.Value.(*types.CacheEntry)
	m.removeLocked(entry.Key, back)
	atomic.AddUint64(&m.evictions, 1)
}

func (m *MemoryStore) removeLocked(key string, elem *list.Element) {
	m.order.Remove(elem)
	delete(m.entries, key)
}
