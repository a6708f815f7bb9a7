package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

// CircuitBreaker is a lightweight in-memory circuit breaker.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	now          func() time.Time
}

// NewCircuitBreaker creates a configured circuit breaker.
func NewCircuitBreaker(cfg objgraph.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    cfg.Threshold,
		window:       cfg.Window,
		openDuration: cfg.OpenDuration,
		failures:     make([]time.Time, 0, cfg.Threshold),
		now:          time.Now,
	}
}

// RecordFailure records a failure and opens the breaker once threshold
// failures fall inside the window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cutoff := now.Add(-cb.window)
	i := 0
	for ; i < len(cb.failures); i++ {
		if cb.failures[i].After(cutoff) {
			break
		}
	}
	cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	cb.failures = append(cb.failures, now)

	if len(cb.failures) >= cb.threshold {
		cb.openUntil = now.Add(cb.openDuration)
	}
}

// RecordSuccess resets failure history.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

// BreakerSink fails fast while its breaker is open instead of calling the
// wrapped sink.
type BreakerSink struct {
	inner   objgraph.Sink
	breaker *CircuitBreaker
}

var _ objgraph.Sink = (*BreakerSink)(nil)

func NewBreakerSink(inner objgraph.Sink, breaker *CircuitBreaker) *BreakerSink {
	return &BreakerSink{inner: inner, breaker: breaker}
}

func (b *BreakerSink) Name() string { return b.inner.Name() }

func (b *BreakerSink) Persist(ctx context.Context, changes *objgraph.ChangeSet) error {
	if b.breaker.IsOpen() {
		return objgraph.NewGraphError(objgraph.ErrorTypePersistence, objgraph.ErrCodePersistFailed,
			"circuit breaker is open").WithDetail("sink", b.inner.Name())
	}
	if err := b.inner.Persist(ctx, changes); err != nil {
		b.breaker.RecordFailure()
		if b.breaker.IsOpen() {
			zap.S().Warnw("sink circuit breaker opened", "sink", b.inner.Name(), "error", err)
		}
		return err
	}
	b.breaker.RecordSuccess()
	return nil
}

// LastSequence forwards to the wrapped sink when it keeps a history.
func (b *BreakerSink) LastSequence(ctx context.Context) (int64, error) {
	if reporter, ok := b.inner.(objgraph.SequenceReporter); ok {
		return reporter.LastSequence(ctx)
	}
	return 0, nil
}

func (b *BreakerSink) Close() error { return b.inner.Close() }
