package cache

import (
	"context"
	"time"

	"github.com/endgamekit/tablebase/types"
)

// NewCacheStore selects the configured backend and wraps it with metrics
// instrumentation. metrics may be nil when the metrics manager is disabled.
func NewCacheStore(ctx context.Context, logger types.Logger, config *types.CacheConfig, metrics types.MetricsManager) (types.CacheStore, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.CacheStore
	var err error

	switch config.Type {
	case "memory":
		impl, err = NewMemoryStore(logger, config)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, config)
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", config.Type)
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedStore(impl, metrics), nil
}

type instrumentedStore struct {
	types.CacheStore
	hits      types.Counter
	misses    types.Counter
	durations types.Histogram
}

func newInstrumentedStore(impl types.CacheStore, metrics types.MetricsManager) types.CacheStore {
	return &instrumentedStore{
		CacheStore: impl,
		hits:       metrics.Counter("cache_hits_total", nil),
		misses:     metrics.Counter("cache_misses_total", nil),
		durations: metrics.Histogram("cache_op_duration_seconds",
			[]float64{0.000001, 0.00001, 0.0001, 0.001, 0.01}, nil),
	}
}

func (s *instrumentedStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := s.CacheStore.Get(key)
	s.durations.ObserveDuration(start)

	if exists {
		s.hits.Inc()
	} else {
		s.misses.Inc()
	}

	return value, exists
}

func (s *instrumentedStore) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := s.CacheStore.Set(key, value, ttl)
	s.durations.ObserveDuration(start)
	return err
}
