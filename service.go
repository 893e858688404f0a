// Package tablebase resolves chess endgame positions against a remote
// win/draw/loss oracle, caching perspective-normalized evaluations with
// bounded memory and TTL expiry.
package tablebase

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/endgamekit/tablebase/cache"
	"github.com/endgamekit/tablebase/client"
	"github.com/endgamekit/tablebase/config"
	"github.com/endgamekit/tablebase/health"
	"github.com/endgamekit/tablebase/logger"
	"github.com/endgamekit/tablebase/maintenance"
	"github.com/endgamekit/tablebase/metrics"
	"github.com/endgamekit/tablebase/position"
	"github.com/endgamekit/tablebase/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	evalKeyPrefix  = "eval:"
	movesKeyPrefix = "moves:"
)

// Service is the evaluation orchestrator: cache check, oracle fetch,
// validation, perspective normalization, cache store. One Service owns
// one cache instance and one in-flight request group; independent
// instances share nothing.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     *types.ServiceConfig
	logger  types.Logger
	store   types.CacheStore
	client  types.OracleClient
	metrics types.MetricsManager
	prober  *health.Prober
	sched   *maintenance.Scheduler
	keyFunc position.KeyFunc

	// flight coalesces concurrent lookups for the same position key onto
	// a single oracle round-trip.
	flight singleflight.Group

	fetchDuration types.Histogram
	state         atomic.Value
}

type Option func(*Service)

// WithLogger substitutes the zap-backed default logger.
func WithLogger(l types.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStore injects an alternate cache implementation.
func WithStore(store types.CacheStore) Option {
	return func(s *Service) { s.store = store }
}

// WithClient injects an alternate oracle client.
func WithClient(c types.OracleClient) Option {
	return func(s *Service) { s.client = c }
}

// WithKeyFunc substitutes the canonical position key function, which is
// owned by the chess-rules collaborator.
func WithKeyFunc(fn position.KeyFunc) Option {
	return func(s *Service) { s.keyFunc = fn }
}

// WithMetrics injects a metrics manager regardless of config.
func WithMetrics(m types.MetricsManager) Option {
	return func(s *Service) { s.metrics = m }
}

// New wires the service from config and options. Invalid configuration
// fails here, never at call time.
func New(ctx context.Context, cfg *types.ServiceConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, types.ErrConfigIsNil
	}

	applyConfigDefaults(cfg)

	if err := config.NewLoader().Validate(cfg); err != nil {
		return nil, err
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:     serviceCtx,
		cancel:  cancel,
		cfg:     cfg,
		keyFunc: position.CanonicalKey,
	}
	s.state.Store(StateStopped)

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		l, err := logger.NewDefaultLogger(cfg.Logger)
		if err != nil {
			cancel()
			return nil, err
		}
		s.logger = l
	}

	if s.metrics == nil && cfg.Metrics != nil && cfg.Metrics.Enabled {
		m, err := metrics.NewPrometheusMetrics(s.logger, cfg.Metrics)
		if err != nil {
			cancel()
			return nil, err
		}
		s.metrics = m
	}

	if s.store == nil {
		store, err := cache.NewCacheStore(serviceCtx, s.logger, cfg.Cache, s.metrics)
		if err != nil {
			cancel()
			return nil, err
		}
		s.store = store
	}

	if s.client == nil {
		c, err := client.NewOracleHTTPClient(s.logger, cfg.Oracle)
		if err != nil {
			cancel()
			return nil, err
		}
		s.client = c
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		s.prober = health.NewProber(serviceCtx, s.logger, s.client, cfg.Health, s.metrics)
	}

	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		sched, err := maintenance.NewScheduler(s.logger, s.store, s.metrics, cfg.Maintenance)
		if err != nil {
			cancel()
			return nil, err
		}
		s.sched = sched
	}

	if s.metrics != nil {
		s.fetchDuration = s.metrics.Histogram("oracle_fetch_duration_seconds",
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, nil)
	}

	return s, nil
}

func (s *Service) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServiceAlreadyRunning
	}

	components := []types.LifecycleManager{s.metrics, s.store, s.prober, s.sched}
	for _, component := range components {
		if component == nil || isNilManager(component) {
			continue
		}
		if err := component.Start(); err != nil {
			s.state.Store(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "%v", err)
		}
	}

	s.state.Store(StateRunning)
	s.logger.Info("Tablebase service started",
		zap.String("name", s.cfg.Name),
		zap.String("version", s.cfg.Version),
		zap.String("oracle", s.cfg.Oracle.BaseURL))
	return nil
}

func (s *Service) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServiceNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	var firstErr error
	components := []types.LifecycleManager{s.sched, s.prober, s.store, s.metrics}
	for _, component := range components {
		if component == nil || isNilManager(component) {
			continue
		}
		if err := component.Stop(); err != nil && firstErr == nil {
			firstErr = types.Errorf(types.ErrComponentStopFailed, "%v", err)
		}
	}

	s.client.Close()

	s.logger.Info("Tablebase service stopped")
	return firstErr
}

func (s *Service) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}

// Available reports the prober's last oracle reachability observation,
// optimistically true when the prober is disabled.
func (s *Service) Available() bool {
	if s.prober == nil {
		return true
	}
	return s.prober.Available()
}

// CacheStats exposes the cache counters for diagnostics.
func (s *Service) CacheStats() types.CacheStats {
	return s.store.Stats()
}

// Evaluation returns the position's evaluation from requestingSide's
// perspective, served from cache when possible. Ordinary network and
// data failures come back as sentinel errors (ErrTablebaseUnavailable,
// ErrPositionRejected), never panics.
func (s *Service) Evaluation(ctx context.Context, fen string, requestingSide types.Color) (types.Evaluation, error) {
	if !s.IsRunning() {
		return types.Evaluation{}, types.ErrServiceNotRunning
	}

	key, referenceSide, err := s.resolveKey(fen)
	if err != nil {
		return types.Evaluation{}, err
	}

	cacheKey := evalKeyPrefix + key
	if value, ok := s.store.Get(cacheKey); ok {
		if ev, ok := value.(types.Evaluation); ok {
			return normalizeEvaluation(ev, requestingSide, referenceSide), nil
		}
		s.logger.Debug("Discarding cache entry of unexpected shape", zap.String("key", cacheKey))
		s.store.Delete(cacheKey)
	}

	value, err, _ := s.flight.Do(cacheKey, func() (interface{}, error) {
		result, err := s.fetch(ctx, key, 0)
		if err != nil {
			return nil, err
		}

		ev := evaluationFromOracle(result)
		if err := s.store.Set(cacheKey, ev, 0); err != nil {
			s.logger.Warn("Failed to cache evaluation", zap.String("key", cacheKey), zap.Error(err))
		}
		return ev, nil
	})
	if err != nil {
		return types.Evaluation{}, s.translateFailure(err, key)
	}

	return normalizeEvaluation(value.(types.Evaluation), requestingSide, referenceSide), nil
}

// TopMoves returns up to limit candidate moves for the position, ranked
// by descending desirability for requestingSide.
func (s *Service) TopMoves(ctx context.Context, fen string, requestingSide types.Color, limit int) ([]types.Move, error) {
	if !s.IsRunning() {
		return nil, types.ErrServiceNotRunning
	}
	if limit <= 0 {
		limit = s.cfg.Oracle.MoveLimit
	}

	key, moverSide, err := s.resolveKey(fen)
	if err != nil {
		return nil, err
	}

	cacheKey := movesKeyPrefix + key
	if value, ok := s.store.Get(cacheKey); ok {
		if moves, ok := value.([]types.Move); ok {
			return clampMoves(RankMoves(normalizeMoves(moves, requestingSide, moverSide)), limit), nil
		}
		s.logger.Debug("Discarding cache entry of unexpected shape", zap.String("key", cacheKey))
		s.store.Delete(cacheKey)
	}

	value, err, _ := s.flight.Do(cacheKey, func() (interface{}, error) {
		result, err := s.fetch(ctx, key, s.cfg.Oracle.MoveLimit)
		if err != nil {
			return nil, err
		}

		moves := movesFromOracle(result)
		if err := s.store.Set(cacheKey, moves, 0); err != nil {
			s.logger.Warn("Failed to cache move list", zap.String("key", cacheKey), zap.Error(err))
		}
		return moves, nil
	})
	if err != nil {
		return nil, s.translateFailure(err, key)
	}

	moves := value.([]types.Move)
	return clampMoves(RankMoves(normalizeMoves(moves, requestingSide, moverSide)), limit), nil
}

func (s *Service) resolveKey(fen string) (string, types.Color, error) {
	key, err := s.keyFunc(fen)
	if err != nil {
		return "", types.White, err
	}

	referenceSide, err := position.SideToMove(key)
	if err != nil {
		return "", types.White, err
	}

	return key, referenceSide, nil
}

func (s *Service) fetch(ctx context.Context, key string, moveLimit int) (*types.OracleResult, error) {
	start := time.Now()

	var result *types.OracleResult
	var err error
	if moveLimit > 0 {
		result, err = s.client.ProbeMoves(ctx, key, moveLimit)
	} else {
		result, err = s.client.Probe(ctx, key)
	}

	if s.fetchDuration != nil {
		s.fetchDuration.ObserveDuration(start)
	}

	return result, err
}

// translateFailure collapses lower-level failures into the small public
// set: permanent rejections pass through; malformed payloads are logged
// and reported as unavailable; everything transient is unavailable.
func (s *Service) translateFailure(err error, key string) error {
	switch {
	case types.IsError(err, types.ErrPositionRejected):
		return err
	case types.IsError(err, types.ErrResponseMalformed):
		s.logger.ErrorWithErrStack("Oracle returned malformed response", err, zap.String("position", key))
		return types.Errorf(types.ErrTablebaseUnavailable, "malformed oracle response")
	case types.IsError(err, types.ErrClientTimeout),
		types.IsError(err, types.ErrOracleCircuitOpen),
		types.IsError(err, types.ErrOracleRequestFailed):
		return types.Errorf(types.ErrTablebaseUnavailable, "%v", err)
	default:
		return types.Errorf(types.ErrTablebaseUnavailable, "%v", err)
	}
}

func clampMoves(moves []types.Move, limit int) []types.Move {
	if limit > 0 && len(moves) > limit {
		return moves[:limit]
	}
	return moves
}

func applyConfigDefaults(cfg *types.ServiceConfig) {
	defaults := config.Defaults()

	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.Oracle == nil {
		cfg.Oracle = defaults.Oracle
	}
	if cfg.Cache == nil {
		cfg.Cache = defaults.Cache
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaults.Metrics
	}
	if cfg.Health == nil {
		cfg.Health = defaults.Health
	}
	if cfg.Maintenance == nil {
		cfg.Maintenance = defaults.Maintenance
	}
}

// isNilManager guards against typed-nil interface values from optional
// components.
func isNilManager(m types.LifecycleManager) bool {
	switch v := m.(type) {
	case *health.Prober:
		return v == nil
	case *maintenance.Scheduler:
		return v == nil
	default:
		return false
	}
}
