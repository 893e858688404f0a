// Package metrics wraps a prometheus registry behind small interfaces so
// components record observations without a prometheus import.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
	"github.com/endgamekit/tablebase/utils"
)

type PrometheusMetrics struct {
	logger     types.Logger
	namespace  string
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
	running    int32
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (*PrometheusMetrics, error) {
	namespace := "tablebase"
	if config != nil && config.Namespace != "" {
		namespace = config.Namespace
	}

	m := &PrometheusMetrics{
		logger:     logger,
		namespace:  namespace,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	logger.Debug("Prometheus metrics initialized", zap.String("namespace", namespace))

	return m, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServiceNotRunning
	}
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// Registry exposes the underlying registry so an embedding application
// can mount its own /metrics handler.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	vec := p.counterVec(name, labelKeys(labels))
	return counter{vec.With(prometheus.Labels(labels))}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	vec := p.gaugeVec(name, labelKeys(labels))
	return gauge{vec.With(prometheus.Labels(labels))}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	vec := p.histogramVec(name, buckets, labelKeys(labels))
	return histogram{vec.With(prometheus.Labels(labels))}
}

// GetStats serializes current metric values, for the maintenance
// scheduler's periodic stats log.
func (p *PrometheusMetrics) GetStats() ([]byte, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return nil, types.WrapError(err, "failed to gather metrics")
	}

	stats := make(map[string]float64, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			stats[metricKey(family, metric)] = metricValue(family, metric)
		}
	}

	return utils.Marshal(stats)
}

func (p *PrometheusMetrics) counterVec(name string, keys []string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vec, exists := p.counters[name]; exists {
		return vec
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      name,
	}, keys)
	p.registry.MustRegister(vec)
	p.counters[name] = vec
	return vec
}

func (p *PrometheusMetrics) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vec, exists := p.gauges[name]; exists {
		return vec
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      name,
	}, keys)
	p.registry.MustRegister(vec)
	p.gauges[name] = vec
	return vec
}

func (p *PrometheusMetrics) histogramVec(name string, buckets []float64, keys []string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vec, exists := p.histograms[name]; exists {
		return vec
	}

	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      name,
		Buckets:   buckets,
	}, keys)
	p.registry.MustRegister(vec)
	p.histograms[name] = vec
	return vec
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func metricKey(family *dto.MetricFamily, metric *dto.Metric) string {
	if len(metric.GetLabel()) == 0 {
		return family.GetName()
	}

	parts := make([]string, 0, len(metric.GetLabel()))
	for _, label := range metric.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%s", label.GetName(), label.GetValue()))
	}
	return family.GetName() + "{" + strings.Join(parts, ",") + "}"
}

func metricValue(family *dto.MetricFamily, metric *dto.Metric) float64 {
	switch family.GetType() {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return metric.GetHistogram().GetSampleSum()
	default:
		return 0
	}
}

type counter struct {
	c prometheus.Counter
}

func (c counter) Inc()              { c.c.Inc() }
func (c counter) Add(value float64) { c.c.Add(value) }

type gauge struct {
	g prometheus.Gauge
}

func (g gauge) Set(value float64) { g.g.Set(value) }
func (g gauge) Inc()              { g.g.Inc() }
func (g gauge) Dec()              { g.g.Dec() }

type histogram struct {
	h prometheus.Observer
}

func (h histogram) Observe(value float64) { h.h.Observe(value) }
func (h histogram) ObserveDuration(start time.Time) {
	h.h.Observe(time.Since(start).Seconds())
}
