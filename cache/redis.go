package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
	"github.com/endgamekit/tablebase/utils"
)

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// Value kinds for the stored envelope. The JSON round-trip erases Go
// types, so each entry records what it holds and Get rebuilds the
// concrete value from the raw bytes.
const (
	kindEvaluation = "evaluation"
	kindMoveList   = "moves"
	kindOpaque     = "opaque"
)

type storedEntry struct {
	Kind       string          `json:"kind"`
	Value      json.RawMessage `json:"value"`
	TTL        time.Duration   `json:"ttl"`
	InsertedAt time.Time       `json:"inserted_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// RedisStore is the shared-deployment cache tier. TTL expiry is native;
// capacity pressure is delegated to the server's maxmemory eviction
// policy, so the LRU recency contract is approximate here. The memory
// store remains the reference implementation of the store contract.
type RedisStore struct {
	ctx        context.Context
	logger     types.Logger
	config     *RedisConfig
	client     *redis.Client
	defaultTTL time.Duration
	hits       uint64
	misses     uint64
	started    int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisStore, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "tablebase",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	store := &RedisStore{
		ctx:        ctx,
		logger:     logger,
		config:     redisConfig,
		defaultTTL: config.DefaultTTL,
	}

	store.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()
	if err := store.client.Ping(pingCtx).Err(); err != nil {
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "%v", err)
	}

	return store, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}

	r.logger.Info("Redis store started",
		zap.String("addr", fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)),
		zap.String("key_prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServiceNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis store stopped")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	result, err := r.client.Get(r.ctx, r.fullKey(key)).Result()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	value, err := decodeEntry([]byte(result))
	if err != nil {
		r.logger.Error("Failed to decode cache entry", zap.String("key", key), zap.Error(err))
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return value, true
}

func (r *RedisStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	data, err := encodeEntry(value, ttl, time.Now())
	if err != nil {
		return types.WrapError(err, "failed to encode cache entry")
	}

	if err := r.client.Set(r.ctx, r.fullKey(key), data, ttl).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "set %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) Has(key string) bool {
	count, err := r.client.Exists(r.ctx, r.fullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to check cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return count > 0
}

func (r *RedisStore) Delete(key string) bool {
	removed, err := r.client.Del(r.ctx, r.fullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to delete cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return removed > 0
}

func (r *RedisStore) Clear() {
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 100).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			r.logger.Error("Failed to clear cache entry", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Cache clear scan failed", zap.Error(err))
	}
}

func (r *RedisStore) Len() int {
	var count int
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 100).Iterator()
	for iter.Next(r.ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Cache len scan failed", zap.Error(err))
	}
	return count
}

// Sweep is a no-op: redis expires entries natively.
func (r *RedisStore) Sweep() int {
	return 0
}

func (r *RedisStore) Stats() types.CacheStats {
	return types.CacheStats{
		Hits:    atomic.LoadUint64(&r.hits),
		Misses:  atomic.LoadUint64(&r.misses),
		Entries: r.Len(),
	}
}

func (r *RedisStore) fullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}

func encodeEntry(value interface{}, ttl time.Duration, now time.Time) ([]byte, error) {
	var kind string
	switch value.(type) {
	case types.Evaluation:
		kind = kindEvaluation
	case []types.Move:
		kind = kindMoveList
	default:
		kind = kindOpaque
	}

	raw, err := utils.Marshal(value)
	if err != nil {
		return nil, err
	}

	return utils.Marshal(storedEntry{
		Kind:       kind,
		Value:      raw,
		TTL:        ttl,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	})
}

// decodeEntry rebuilds the concrete Go value an entry was stored with,
// so reads type-assert the same way they do against the memory store.
func decodeEntry(data []byte) (interface{}, error) {
	var entry storedEntry
	if err := utils.Unmarshal(data, &entry); err != nil {
		return nil, err
	}

	switch entry.Kind {
	case kindEvaluation:
		var ev types.Evaluation
		if err := utils.Unmarshal(entry.Value, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case kindMoveList:
		var moves []types.Move
		if err := utils.Unmarshal(entry.Value, &moves); err != nil {
			return nil, err
		}
		return moves, nil
	default:
		var value interface{}
		if err := utils.Unmarshal(entry.Value, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}
