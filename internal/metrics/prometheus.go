// Package metrics exports object store telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/lychee-technology/objgraph/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector holds the Prometheus vectors fed by the telemetry hook.
type Collector struct {
	commits     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	liveObjects *prometheus.GaugeVec
}

// NewCollector creates the vectors under namespace and registers them with reg.
// Vectors already registered under the same names are reused.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commit attempts by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_ms",
			Help:      "Latency of store operations in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"stage"}),
		liveObjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_objects",
			Help:      "Committed live objects per entity.",
		}, []string{"entity"}),
	}
	var err error
	if c.commits, err = register(reg, c.commits); err != nil {
		return nil, err
	}
	if c.latency, err = register(reg, c.latency); err != nil {
		return nil, err
	}
	if c.liveObjects, err = register(reg, c.liveObjects); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, fmt.Errorf("register metrics: %w", err)
	}
	return col, nil
}

// Emit is an internal.TelemetryEmitter.
func (c *Collector) Emit(_ context.Context, name string, labels map[string]string, value any) {
	v, ok := toFloat(value)
	if !ok {
		zap.S().Debugw("dropping non-numeric measurement", "metric", name, "value", value)
		return
	}
	switch name {
	case internal.MetricCommits:
		c.commits.WithLabelValues(labels["result"]).Add(v)
	case internal.MetricOperationLatency:
		c.latency.WithLabelValues(labels["stage"]).Observe(v)
	case internal.MetricLiveObjects:
		c.liveObjects.WithLabelValues(labels["entity"]).Set(v)
	}
}

// Install creates a collector and routes store telemetry to it.
func Install(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c, err := NewCollector(namespace, reg)
	if err != nil {
		return nil, err
	}
	internal.RegisterTelemetryEmitter(c.Emit)
	return c, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
