// Package health tracks oracle availability so callers can render a
// "tablebase offline" state before issuing lookups.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
)

// A bare-kings draw: the cheapest query the oracle will answer.
const probeKey = "4k3/8/8/8/8/8/8/4K3 w - -"

type State int32

const (
	StateStopped State = iota
	StateRunning
)

// Prober periodically issues a lightweight oracle query and keeps the
// last observed availability.
type Prober struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	client   types.OracleClient
	interval time.Duration
	gauge    types.Gauge

	available atomic.Bool
	state     atomic.Value
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu       sync.RWMutex
	lastErr  error
	lastSeen time.Time
}

func NewProber(ctx context.Context, logger types.Logger, client types.OracleClient, config *types.HealthConfig, metrics types.MetricsManager) *Prober {
	interval := time.Minute
	if config != nil && config.Interval > 0 {
		interval = config.Interval
	}

	probeCtx, cancel := context.WithCancel(ctx)

	p := &Prober{
		ctx:      probeCtx,
		cancel:   cancel,
		logger:   logger,
		client:   client,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	p.state.Store(StateStopped)
	// Optimistic until the first probe says otherwise.
	p.available.Store(true)

	if metrics != nil {
		p.gauge = metrics.Gauge("oracle_available", nil)
	}

	return p
}

func (p *Prober) Start() error {
	if !p.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServiceAlreadyRunning
	}

	go p.loop()

	p.logger.Info("Oracle prober started", zap.Duration("interval", p.interval))
	return nil
}

func (p *Prober) Stop() error {
	if !p.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServiceNotRunning
	}

	p.cancel()
	close(p.stopCh)

	select {
	case <-p.doneCh:
	case <-time.After(5 * time.Second):
		p.logger.Warn("Oracle prober stop timeout")
	}

	return nil
}

func (p *Prober) IsRunning() bool {
	return p.state.Load().(State) == StateRunning
}

// Available reports the last observed oracle reachability.
func (p *Prober) Available() bool {
	return p.available.Load()
}

// LastError returns the most recent probe failure, if any.
func (p *Prober) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Prober) loop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe()
		}
	}
}

func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	defer cancel()

	_, err := p.client.Probe(ctx, probeKey)
	// A permanent rejection still proves the oracle is answering.
	reachable := err == nil || types.IsError(err, types.ErrPositionRejected)

	was := p.available.Swap(reachable)

	p.mu.Lock()
	p.lastErr = err
	if reachable {
		p.lastSeen = time.Now()
	}
	p.mu.Unlock()

	if p.gauge != nil {
		if reachable {
			p.gauge.Set(1)
		} else {
			p.gauge.Set(0)
		}
	}

	if was != reachable {
		if reachable {
			p.logger.Info("Oracle reachable again")
		} else {
			p.logger.Warn("Oracle unreachable", zap.Error(err))
		}
	}
}
