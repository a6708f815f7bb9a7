package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

// Commit validates every pending object, hands the change set to the sink and
// only then transitions states. Either every pending change is committed or
// the store is left exactly as it was.
func (s *ObjectStore) Commit(ctx context.Context) (*objgraph.ChangeSet, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validatePending(); err != nil {
		zap.S().Warnw("commit rejected", "error", err)
		EmitCommit(ctx, "invalid")
		return nil, err
	}
	EmitLatency(ctx, "validate", time.Since(start).Milliseconds())

	changes := s.buildChangeSet()
	empty := changes.IsEmpty()
	if !empty && s.sink != nil {
		persistStart := time.Now()
		if err := s.sink.Persist(ctx, changes); err != nil {
			zap.S().Warnw("sink rejected change set", "sink", s.sink.Name(), "sequence", changes.Sequence, "error", err)
			EmitCommit(ctx, "sink_error")
			return nil, objgraph.NewPersistenceError(s.sink.Name(), err).WithDetail("sequence", changes.Sequence)
		}
		EmitLatency(ctx, "persist", time.Since(persistStart).Milliseconds())
	}

	live := make(map[string]int64)
	order := s.state.order[:0]
	for _, id := range s.state.order {
		obj := s.state.objects[id]
		if obj.state == objgraph.StateDeleted {
			delete(s.state.objects, id)
			continue
		}
		obj.state = objgraph.StateSaved
		order = append(order, id)
		live[obj.entity.Name]++
	}
	s.state.order = order
	s.commitSeq = changes.Sequence
	s.committed = s.state.clone()

	if empty {
		// Objects created and deleted since the last commit are still purged.
		EmitCommit(ctx, "empty")
		return changes, nil
	}

	zap.S().Debugw("committed change set", "sequence", changes.Sequence,
		"inserted", len(changes.Inserted), "updated", len(changes.Updated), "deleted", len(changes.Deleted))
	for _, name := range SortedKeys(live) {
		EmitObjectCount(ctx, name, live[name])
	}
	EmitCommit(ctx, "ok")
	EmitLatency(ctx, "commit", time.Since(start).Milliseconds())
	return changes, nil
}

// validatePending collects every missing required attribute and every
// relationship below its minimum among new and modified objects.
func (s *ObjectStore) validatePending() error {
	issues := objgraph.NewValidationErrors()
	for _, id := range s.state.order {
		obj := s.state.objects[id]
		if obj.state != objgraph.StateNew && obj.state != objgraph.StateModified {
			continue
		}
		for _, attr := range obj.entity.Attributes {
			if attr.Required && obj.attrs[attr.Name].IsNull() {
				issues.Add(&objgraph.ValidationIssue{
					Code:    objgraph.ErrCodeRequiredFieldMissing,
					Message: "required attribute is missing",
					Object:  obj.id,
					Entity:  obj.entity.Name,
					Field:   attr.Name,
				})
			}
		}
		if !s.config.Store.ValidateMinCardinality {
			continue
		}
		for _, rel := range obj.entity.Relationships {
			if n := len(obj.rels[rel.Name]); n < rel.MinCount {
				issues.Add(&objgraph.ValidationIssue{
					Code:    objgraph.ErrCodeMinCardinality,
					Message: fmt.Sprintf("relationship holds %d object(s), minimum is %d", n, rel.MinCount),
					Object:  obj.id,
					Entity:  obj.entity.Name,
					Field:   rel.Name,
				})
			}
		}
	}
	return issues.ToError()
}

func (s *ObjectStore) buildChangeSet() *objgraph.ChangeSet {
	changes := &objgraph.ChangeSet{
		Sequence:    s.commitSeq + 1,
		CommittedAt: s.now().UTC(),
	}
	for _, id := range s.state.order {
		obj := s.state.objects[id]
		switch obj.state {
		case objgraph.StateNew:
			changes.Inserted = append(changes.Inserted, s.record(obj))
		case objgraph.StateModified:
			changes.Updated = append(changes.Updated, s.record(obj))
		case objgraph.StateDeleted:
			if s.persisted(id) {
				changes.Deleted = append(changes.Deleted, obj.ref())
			}
		}
	}
	if changes.IsEmpty() {
		changes.Sequence = s.commitSeq
	}
	return changes
}

// Resume continues sequence numbering after the last change set the sink
// already holds. Sinks that do not report sequences leave numbering at zero.
func (s *ObjectStore) Resume(ctx context.Context) error {
	reporter, ok := s.sink.(objgraph.SequenceReporter)
	if !ok {
		return nil
	}
	last, err := reporter.LastSequence(ctx)
	if err != nil {
		return objgraph.NewGraphError(objgraph.ErrorTypePersistence, objgraph.ErrCodePersistFailed,
			fmt.Sprintf("sink %s could not report its last sequence", s.sink.Name())).
			WithDetail("sink", s.sink.Name()).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if last > s.commitSeq {
		s.commitSeq = last
	}
	zap.S().Infow("resumed sequence from sink", "sink", s.sink.Name(), "sequence", s.commitSeq)
	return nil
}

// Rollback discards every uncommitted change. Identities handed out since
// the last commit become unknown and are never reissued.
func (s *ObjectStore) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	discarded := len(s.state.order) - len(s.committed.order)
	s.state = s.committed.clone()
	zap.S().Debugw("rolled back to last commit", "sequence", s.commitSeq, "discarded_objects", discarded)
}

// Close releases the sink, if any.
func (s *ObjectStore) Close() error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Close()
}
