// Package maintenance runs periodic cache hygiene on a cron schedule.
package maintenance

import (
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
)

const defaultSweepSchedule = "0 */5 * * * *"

// Scheduler sweeps expired cache entries and logs cache statistics on a
// cron schedule. Lazy expiry keeps the cache correct without it; the
// sweep just returns the memory earlier.
type Scheduler struct {
	logger  types.Logger
	store   types.CacheStore
	metrics types.MetricsManager
	cron    *cron.Cron
	running int32
}

func NewScheduler(logger types.Logger, store types.CacheStore, metrics types.MetricsManager, config *types.MaintenanceConfig) (*Scheduler, error) {
	schedule := defaultSweepSchedule
	if config != nil && config.SweepSchedule != "" {
		schedule = config.SweepSchedule
	}

	s := &Scheduler{
		logger:  logger,
		store:   store,
		metrics: metrics,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, types.WrapError(err, "invalid sweep schedule "+schedule)
	}

	return s, nil
}

func (s *Scheduler) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}

	s.cron.Start()
	s.logger.Info("Maintenance scheduler started")
	return nil
}

func (s *Scheduler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrServiceNotRunning
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Maintenance scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Scheduler) sweep() {
	purged := s.store.Sweep()
	stats := s.store.Stats()

	s.logger.Debug("Cache sweep",
		zap.Int("purged", purged),
		zap.Int("entries", stats.Entries),
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("misses", stats.Misses),
		zap.Uint64("evictions", stats.Evictions))

	if s.metrics != nil {
		if raw, err := s.metrics.GetStats(); err == nil {
			s.logger.Debug("Metrics snapshot", zap.ByteString("stats", raw))
		}
	}
}

type cronLogger struct {
	logger types.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
