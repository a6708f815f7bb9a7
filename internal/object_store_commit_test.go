package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lychee-technology/objgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_ChangeSetContents(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, sink)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	s.now = func() time.Time { return at }

	rex := insertDino(t, s, "Rex", "T-Rex", 7000)
	torch := insertTorch(t, s, "blue")
	require.NoError(t, s.AddToRelationship(rex, "torches", torch))

	changes, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes.Sequence)
	assert.Equal(t, at.UTC(), changes.CommittedAt)
	require.Len(t, changes.Inserted, 2)
	assert.Equal(t, rex, changes.Inserted[0].ID)
	assert.Equal(t, "Rex", changes.Inserted[0].Attributes["name"])
	assert.Equal(t, []objgraph.ObjectID{torch}, changes.Inserted[0].Relationships["torches"])
	assert.Equal(t, torch, changes.Inserted[1].ID)
	assert.Empty(t, changes.Updated)
	assert.Empty(t, changes.Deleted)

	require.Len(t, sink.batches, 1)
	assert.Same(t, changes, sink.batches[0])

	require.NoError(t, s.SetAttribute(rex, "weight", objgraph.Float(7100)))
	require.NoError(t, s.Delete(torch))
	changes, err = s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), changes.Sequence)
	require.Len(t, changes.Updated, 1)
	assert.Equal(t, 7100.0, changes.Updated[0].Attributes["weight"])
	assert.Empty(t, changes.Updated[0].Relationships["torches"])
	assert.Equal(t, []objgraph.ObjectRef{{ID: torch, EntityName: "Torch"}}, changes.Deleted)
}

func TestCommit_EmptySkipsSink(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, sink)
	insertDino(t, s, "Rex", "T-Rex", 7000)
	_, err := s.Commit(t.Context())
	require.NoError(t, err)

	changes, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty())
	assert.Equal(t, int64(1), changes.Sequence)
	assert.Len(t, sink.batches, 1)
}

func TestCommit_AllOrNothing(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, sink)
	rex := insertDino(t, s, "Rex", "T-Rex", 7000)
	nameless, err := s.Insert("Dinosaur", map[string]objgraph.Value{"species": objgraph.Text("Unknown")})
	require.NoError(t, err)

	_, err = s.Commit(t.Context())
	require.Error(t, err)
	assert.True(t, objgraph.IsValidationError(err))

	var verrs *objgraph.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs.Errors, 1)
	assert.Equal(t, nameless, verrs.Errors[0].Object)
	assert.Equal(t, "name", verrs.Errors[0].Field)
	assert.Equal(t, objgraph.ErrCodeRequiredFieldMissing, verrs.Errors[0].Code)
	assert.Equal(t, []string{"Dinosaur.name"}, verrs.Fields())

	// Nothing was committed: both objects are still new.
	for _, id := range []objgraph.ObjectID{rex, nameless} {
		state, err := s.ObjectState(id)
		require.NoError(t, err)
		assert.Equal(t, objgraph.StateNew, state)
	}
	assert.Empty(t, sink.batches)

	require.NoError(t, s.SetAttribute(nameless, "name", objgraph.Text("Mystery")))
	changes, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Len(t, changes.Inserted, 2)
}

func TestCommit_ReportsEveryIssue(t *testing.T) {
	hatchling := &objgraph.EntityType{Name: "Hatchling"}
	clutch := &objgraph.EntityType{Name: "Clutch"}
	objgraph.LinkInverse(
		clutch, objgraph.RelationshipDef{Name: "hatchlings"},
		hatchling, objgraph.RelationshipDef{Name: "clutch", MinCount: 1, MaxCount: 1},
	)
	s := newTestStore(t, nil, clutch, hatchling)

	orphan, err := s.Insert("Hatchling", nil)
	require.NoError(t, err)
	nameless, err := s.Insert("Dinosaur", nil)
	require.NoError(t, err)

	_, err = s.Commit(t.Context())
	var verrs *objgraph.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{"Hatchling.clutch", "Dinosaur.name"}, verrs.Fields())
	assert.Contains(t, err.Error(), "multiple validation errors: 2 errors found")

	codes := map[objgraph.ObjectID]string{}
	for _, issue := range verrs.Errors {
		codes[issue.Object] = issue.Code
	}
	assert.Equal(t, objgraph.ErrCodeMinCardinality, codes[orphan])
	assert.Equal(t, objgraph.ErrCodeRequiredFieldMissing, codes[nameless])

	// The minimum check can be switched off.
	s.config.Store.ValidateMinCardinality = false
	require.NoError(t, s.SetAttribute(nameless, "name", objgraph.Text("Named")))
	_, err = s.Commit(t.Context())
	assert.NoError(t, err)
}

func TestCommit_SinkFailureLeavesStoreUnchanged(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, sink)
	rex := insertDino(t, s, "Rex", "T-Rex", 7000)
	_, err := s.Commit(t.Context())
	require.NoError(t, err)

	require.NoError(t, s.SetAttribute(rex, "weight", objgraph.Float(7200)))
	trixie := insertDino(t, s, "Trixie", "Triceratops", 3200)
	before := s.PendingChanges()

	sink.fail = errSinkDown
	_, err = s.Commit(t.Context())
	require.Error(t, err)
	assert.True(t, objgraph.IsPersistenceError(err))
	assert.ErrorIs(t, err, errSinkDown)
	var ge *objgraph.GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, int64(2), ge.Details["sequence"])

	assert.Equal(t, before, s.PendingChanges())
	state, _ := s.ObjectState(trixie)
	assert.Equal(t, objgraph.StateNew, state)
	state, _ = s.ObjectState(rex)
	assert.Equal(t, objgraph.StateModified, state)

	sink.fail = nil
	changes, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), changes.Sequence, "a failed attempt does not consume a sequence number")
}

func TestRollback_RestoresLastCommit(t *testing.T) {
	s := newTestStore(t, nil)
	rex := insertDino(t, s, "Rex", "T-Rex", 7000)
	blue := insertTorch(t, s, "blue")
	require.NoError(t, s.AddToRelationship(rex, "torches", blue))
	_, err := s.Commit(t.Context())
	require.NoError(t, err)

	red := insertTorch(t, s, "red")
	require.NoError(t, s.AddToRelationship(rex, "torches", red))
	require.NoError(t, s.SetAttribute(rex, "name", objgraph.Text("Rexy")))
	require.NoError(t, s.Delete(blue))

	s.Rollback()

	assert.False(t, s.HasChanges())
	name, err := s.GetAttribute(rex, "name")
	require.NoError(t, err)
	assert.Equal(t, objgraph.Text("Rex"), name)
	assert.Equal(t, []objgraph.ObjectID{blue}, relOf(t, s, rex, "torches"))
	state, err := s.ObjectState(blue)
	require.NoError(t, err)
	assert.Equal(t, objgraph.StateSaved, state)
	_, err = s.ObjectState(red)
	assert.True(t, objgraph.IsNotFoundError(err))
}

func TestRollback_BeforeFirstCommit(t *testing.T) {
	s := newTestStore(t, nil)
	id := insertDino(t, s, "Rex", "T-Rex", 7000)
	s.Rollback()

	_, err := s.GetAttribute(id, "name")
	assert.True(t, objgraph.IsNotFoundError(err))

	rs, err := s.Query(&objgraph.FetchRequest{EntityName: "Dinosaur"})
	require.NoError(t, err)
	n, err := rs.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCommit_EmitsTelemetry(t *testing.T) {
	type sample struct {
		name   string
		labels map[string]string
		value  any
	}
	var (
		mu      sync.Mutex
		samples []sample
	)
	RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, value any) {
		mu.Lock()
		defer mu.Unlock()
		samples = append(samples, sample{name, labels, value})
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })

	s := newTestStore(t, nil)
	insertDino(t, s, "Rex", "T-Rex", 7000)
	insertDino(t, s, "Trixie", "Triceratops", 3200)
	_, err := s.Commit(t.Context())
	require.NoError(t, err)
	_, err = s.Insert("Dinosaur", nil)
	require.NoError(t, err)
	_, err = s.Commit(t.Context())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	results := map[string]int{}
	var live any
	for _, smp := range samples {
		switch smp.name {
		case MetricCommits:
			results[smp.labels["result"]]++
		case MetricLiveObjects:
			if smp.labels["entity"] == "Dinosaur" {
				live = smp.value
			}
		}
	}
	assert.Equal(t, map[string]int{"ok": 1, "invalid": 1}, results)
	assert.Equal(t, int64(2), live)
}

func TestObjectStore_CloseClosesSink(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, sink)
	require.NoError(t, s.Close())
	assert.True(t, sink.closed)

	assert.NoError(t, newTestStore(t, nil).Close())
}

// historySink reports the highest sequence a previous run left behind.
type historySink struct {
	recordingSink
	last int64
	err  error
}

func (h *historySink) LastSequence(context.Context) (int64, error) { return h.last, h.err }

func TestResume_ContinuesAfterSinkHistory(t *testing.T) {
	sink := &historySink{last: 7}
	s := newTestStore(t, sink)
	require.NoError(t, s.Resume(t.Context()))

	insertDino(t, s, "Rex", "T-Rex", 7000)
	changes, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(8), changes.Sequence)

	// An empty commit reports the resumed sequence.
	changes, err = s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(8), changes.Sequence)
}

func TestResume_Errors(t *testing.T) {
	s := newTestStore(t, &historySink{err: errSinkDown})
	err := s.Resume(t.Context())
	assert.True(t, objgraph.IsPersistenceError(err))
	assert.ErrorIs(t, err, errSinkDown)

	// Sinks without history and stores without a sink start at zero.
	assert.NoError(t, newTestStore(t, &recordingSink{}).Resume(t.Context()))
	assert.NoError(t, newTestStore(t, nil).Resume(t.Context()))
}
