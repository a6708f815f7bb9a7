package internal

import (
	"context"
	"sync"
)

// Telemetry hook layer. The default emitter is a no-op; internal/metrics
// installs a Prometheus-backed emitter, tests may install a recorder.

// Metric names passed to the emitter.
const (
	MetricOperationLatency = "objgraph_operation_latency_ms"
	MetricCommits          = "objgraph_commits_total"
	MetricLiveObjects      = "objgraph_live_objects"
)

// TelemetryEmitter receives every measurement.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn; nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() TelemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitLatency records a latency in milliseconds for a stage
// ("query", "validate", "persist", "commit").
func EmitLatency(ctx context.Context, stage string, ms int64) {
	emitter()(ctx, MetricOperationLatency, map[string]string{"stage": stage}, ms)
}

// EmitCommit counts a commit attempt by result ("ok", "invalid", "sink_error", "empty").
func EmitCommit(ctx context.Context, result string) {
	emitter()(ctx, MetricCommits, map[string]string{"result": result}, int64(1))
}

// EmitObjectCount records the number of live objects of an entity after a commit.
func EmitObjectCount(ctx context.Context, entity string, count int64) {
	emitter()(ctx, MetricLiveObjects, map[string]string{"entity": entity}, count)
}
