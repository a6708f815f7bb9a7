package internal

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/lychee-technology/objgraph"
)

// Query validates req and returns a live result set. Attribute names in the
// condition and sort keys may be stored or derived.
func (s *ObjectStore) Query(req *objgraph.FetchRequest) (objgraph.ResultSet, error) {
	if req == nil {
		return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidFilter, "fetch request cannot be nil")
	}
	entity, ok := s.registry.lookup(req.EntityName)
	if !ok {
		return nil, entityNotFound(req.EntityName)
	}

	if req.Condition != nil {
		for _, attr := range req.Condition.ReferencedAttributes() {
			if _, ok := entity.AttributeKind(attr); !ok {
				return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidFilter,
					fmt.Sprintf("filter references unknown attribute '%s'", attr)).WithField(attr)
			}
		}
		if err := validateComparisons(req.Condition); err != nil {
			return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidFilter, err.Error()).WithCause(err)
		}
	}
	for _, key := range req.SortKeys {
		if _, ok := entity.AttributeKind(key.Attr); !ok {
			return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidSort,
				fmt.Sprintf("sort key references unknown attribute '%s'", key.Attr)).WithField(key.Attr)
		}
		switch key.SortOrder {
		case "", objgraph.SortOrderAsc, objgraph.SortOrderDesc:
		default:
			return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidSort,
				fmt.Sprintf("unsupported sort order '%s'", key.SortOrder)).WithField(key.Attr)
		}
	}
	if req.Offset < 0 || req.Limit < 0 {
		return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidPage, "offset and limit must not be negative")
	}

	bound := *req
	bound.SortKeys = slices.Clone(req.SortKeys)
	if bound.Limit == 0 {
		bound.Limit = s.config.Query.DefaultLimit
	}
	if maxLimit := s.config.Query.MaxLimit; maxLimit > 0 && (bound.Limit == 0 || bound.Limit > maxLimit) {
		bound.Limit = maxLimit
	}
	return &resultSet{store: s, req: bound}, nil
}

func validateComparisons(cond objgraph.Condition) error {
	switch c := cond.(type) {
	case *objgraph.Comparison:
		return c.Validate()
	case *objgraph.CompositeCondition:
		for _, child := range c.Conditions {
			if err := validateComparisons(child); err != nil {
				return err
			}
		}
	}
	return nil
}

type resultSet struct {
	store *ObjectStore
	req   objgraph.FetchRequest
}

// All ranges over matching identities. Each call evaluates the request
// against the store as it is at that moment; the lock is released before
// the first identity is yielded.
func (r *resultSet) All() iter.Seq2[objgraph.ObjectID, error] {
	return func(yield func(objgraph.ObjectID, error) bool) {
		ids, err := r.evaluate()
		if err != nil {
			yield(objgraph.NilObjectID, err)
			return
		}
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (r *resultSet) IDs() ([]objgraph.ObjectID, error) {
	return r.evaluate()
}

// Count returns the number of matches ignoring offset and limit.
func (r *resultSet) Count() (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	matches, err := r.store.match(&r.req)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

type sortRow struct {
	obj  *managedObject
	keys []objgraph.Value
}

func (r *resultSet) evaluate() ([]objgraph.ObjectID, error) {
	start := time.Now()
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := s.match(&r.req)
	if err != nil {
		return nil, err
	}

	if len(r.req.SortKeys) > 0 {
		rows := make([]sortRow, len(matches))
		for i, obj := range matches {
			src := objectSource{store: s, obj: obj}
			rows[i] = sortRow{obj: obj, keys: make([]objgraph.Value, len(r.req.SortKeys))}
			for k, key := range r.req.SortKeys {
				v, _, err := src.Attribute(key.Attr)
				if err != nil {
					return nil, err
				}
				rows[i].keys[k] = v
			}
		}
		var sortErr error
		slices.SortStableFunc(rows, func(a, b sortRow) int {
			for k, key := range r.req.SortKeys {
				c, err := a.keys[k].Compare(b.keys[k])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				if c == 0 {
					continue
				}
				if key.SortOrder == objgraph.SortOrderDesc {
					return -c
				}
				return c
			}
			return 0
		})
		if sortErr != nil {
			return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidSort, sortErr.Error()).WithCause(sortErr)
		}
		for i, row := range rows {
			matches[i] = row.obj
		}
	}

	matches = paginate(matches, r.req.Offset, r.req.Limit)
	ids := make([]objgraph.ObjectID, len(matches))
	for i, obj := range matches {
		ids[i] = obj.id
	}

	EmitLatency(context.Background(), "query", time.Since(start).Milliseconds())
	return ids, nil
}

// match returns live objects of the requested entity that satisfy the
// condition, in insertion order.
func (s *ObjectStore) match(req *objgraph.FetchRequest) ([]*managedObject, error) {
	var matches []*managedObject
	for _, id := range s.state.order {
		obj := s.state.objects[id]
		if obj.state == objgraph.StateDeleted || obj.entity.Name != req.EntityName {
			continue
		}
		if req.Condition != nil {
			ok, err := req.Condition.Evaluate(objectSource{store: s, obj: obj})
			if err != nil {
				return nil, objgraph.NewQueryError(objgraph.ErrCodeInvalidFilter, err.Error()).
					WithObject(obj.id, obj.entity.Name).WithCause(err)
			}
			if !ok {
				continue
			}
		}
		matches = append(matches, obj)
	}
	return matches, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
