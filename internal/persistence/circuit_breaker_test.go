package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lychee-technology/objgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(objgraph.CircuitBreakerConfig{
		Threshold:    threshold,
		Window:       time.Minute,
		OpenDuration: 30 * time.Second,
	})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, clock := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	clock.Advance(31 * time.Second)
	assert.False(t, cb.IsOpen(), "breaker closes after the open duration")
}

func TestCircuitBreaker_FailuresOutsideWindowExpire(t *testing.T) {
	cb, clock := newTestBreaker(2)

	cb.RecordFailure()
	clock.Advance(2 * time.Minute)
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb, _ := newTestBreaker(2)
	cb.RecordFailure()
	cb.RecordFailure()
	require.True(t, cb.IsOpen())

	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
}

type flakySink struct {
	fail  error
	calls int
}

func (f *flakySink) Name() string { return "flaky" }
func (f *flakySink) Persist(context.Context, *objgraph.ChangeSet) error {
	f.calls++
	return f.fail
}
func (f *flakySink) Close() error { return nil }

func TestBreakerSink_FailsFastWhileOpen(t *testing.T) {
	cb, clock := newTestBreaker(2)
	down := errors.New("bucket unreachable")
	inner := &flakySink{fail: down}
	sink := NewBreakerSink(inner, cb)
	assert.Equal(t, "flaky", sink.Name())

	changes := &objgraph.ChangeSet{Sequence: 1}
	for range 2 {
		assert.ErrorIs(t, sink.Persist(t.Context(), changes), down)
	}

	err := sink.Persist(t.Context(), changes)
	require.Error(t, err)
	assert.NotErrorIs(t, err, down)
	assert.True(t, objgraph.IsPersistenceError(err))
	var ge *objgraph.GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, objgraph.ErrCodePersistFailed, ge.Code)
	assert.Equal(t, "flaky", ge.Details["sink"])
	assert.Equal(t, 2, inner.calls, "an open breaker does not reach the sink")

	clock.Advance(time.Minute)
	inner.fail = nil
	require.NoError(t, sink.Persist(t.Context(), changes))
	assert.Equal(t, 3, inner.calls)
	assert.False(t, cb.IsOpen())
	assert.NoError(t, sink.Close())
}

type sequencedSink struct {
	flakySink
	last int64
}

func (s *sequencedSink) LastSequence(context.Context) (int64, error) { return s.last, nil }

func TestBreakerSink_ForwardsLastSequence(t *testing.T) {
	cb, _ := newTestBreaker(2)

	last, err := NewBreakerSink(&sequencedSink{last: 41}, cb).LastSequence(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(41), last)

	last, err = NewBreakerSink(&flakySink{}, cb).LastSequence(t.Context())
	require.NoError(t, err)
	assert.Zero(t, last)
}
