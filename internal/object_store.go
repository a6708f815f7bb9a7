package internal

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

type managedObject struct {
	id     objgraph.ObjectID
	entity *objgraph.EntityType
	seq    int64
	state  objgraph.LifecycleState
	attrs  map[string]objgraph.Value
	rels   map[string][]objgraph.ObjectID
}

func (o *managedObject) clone() *managedObject {
	c := *o
	c.attrs = maps.Clone(o.attrs)
	c.rels = make(map[string][]objgraph.ObjectID, len(o.rels))
	for name, ids := range o.rels {
		c.rels[name] = slices.Clone(ids)
	}
	return &c
}

func (o *managedObject) ref() objgraph.ObjectRef {
	return objgraph.ObjectRef{ID: o.id, EntityName: o.entity.Name}
}

// touch records a change to an object that is not new.
func (o *managedObject) touch() {
	if o.state == objgraph.StateSaved {
		o.state = objgraph.StateModified
	}
}

// graphState is the arena of managed objects plus their insertion order.
type graphState struct {
	objects map[objgraph.ObjectID]*managedObject
	order   []objgraph.ObjectID
}

func newGraphState() *graphState {
	return &graphState{objects: make(map[objgraph.ObjectID]*managedObject)}
}

func (g *graphState) clone() *graphState {
	c := &graphState{
		objects: make(map[objgraph.ObjectID]*managedObject, len(g.objects)),
		order:   slices.Clone(g.order),
	}
	for id, obj := range g.objects {
		c.objects[id] = obj.clone()
	}
	return c
}

// ObjectStore is the managed object context: it owns every live object,
// mediates relationship edits and commits changes through an optional sink.
// All methods are safe for concurrent use; one writer runs at a time.
type ObjectStore struct {
	mu        sync.RWMutex
	registry  *EntityRegistry
	sink      objgraph.Sink
	config    *objgraph.Config
	state     *graphState
	committed *graphState
	nextSeq   int64
	commitSeq int64
	now       func() time.Time
}

var _ objgraph.ObjectContext = (*ObjectStore)(nil)

// NewObjectStore creates an empty context over registry. sink may be nil for
// a purely in-memory context; a nil config uses objgraph.DefaultConfig.
func NewObjectStore(registry *EntityRegistry, sink objgraph.Sink, config *objgraph.Config) *ObjectStore {
	if registry == nil {
		registry = NewEntityRegistry()
	}
	if config == nil {
		config = objgraph.DefaultConfig()
	}
	return &ObjectStore{
		registry:  registry,
		sink:      sink,
		config:    config,
		state:     newGraphState(),
		committed: newGraphState(),
		now:       time.Now,
	}
}

func (s *ObjectStore) Registry() objgraph.SchemaRegistry {
	return s.registry
}

// object returns a live object. Pending deletions are visible only when
// includeDeleted is set.
func (s *ObjectStore) object(id objgraph.ObjectID, includeDeleted bool) (*managedObject, error) {
	obj, ok := s.state.objects[id]
	if !ok || (!includeDeleted && obj.state == objgraph.StateDeleted) {
		return nil, objgraph.NewNotFoundError(id)
	}
	return obj, nil
}

// checkValue enforces the attribute's kind. Integers widen to float.
func checkValue(obj *managedObject, def objgraph.AttributeDef, v objgraph.Value) (objgraph.Value, error) {
	if v.IsNull() || v.Kind() == def.Kind {
		return v, nil
	}
	if def.Kind == objgraph.KindFloat && v.Kind() == objgraph.KindInteger {
		n, _ := v.AsInteger()
		return objgraph.Float(float64(n)), nil
	}
	return objgraph.Null(), objgraph.NewKindMismatchError(def.Name, def.Kind, v.Kind()).WithObject(obj.id, obj.entity.Name)
}

func unknownAttribute(obj *managedObject, name string) *objgraph.GraphError {
	msg := "attribute is not defined on entity"
	if _, ok := obj.entity.DerivedAttribute(name); ok {
		msg = "derived attributes cannot be assigned"
	}
	return objgraph.NewValidationError(objgraph.ErrCodeUnknownAttribute, name, msg).WithObject(obj.id, obj.entity.Name)
}

// Insert creates a new object. Unsupplied attributes take their default.
func (s *ObjectStore) Insert(entity string, values map[string]objgraph.Value) (objgraph.ObjectID, error) {
	def, ok := s.registry.lookup(entity)
	if !ok {
		return objgraph.NilObjectID, entityNotFound(entity)
	}

	obj := &managedObject{
		id:     objgraph.NewObjectID(),
		entity: def,
		state:  objgraph.StateNew,
		attrs:  make(map[string]objgraph.Value, len(def.Attributes)),
		rels:   make(map[string][]objgraph.ObjectID, len(def.Relationships)),
	}

	for _, name := range SortedKeys(values) {
		attr, ok := def.Attribute(name)
		if !ok {
			return objgraph.NilObjectID, unknownAttribute(obj, name)
		}
		v, err := checkValue(obj, attr, values[name])
		if err != nil {
			return objgraph.NilObjectID, err
		}
		obj.attrs[name] = v
	}
	for _, attr := range def.Attributes {
		if _, supplied := obj.attrs[attr.Name]; !supplied {
			obj.attrs[attr.Name] = attr.Default
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	obj.seq = s.nextSeq
	s.state.objects[obj.id] = obj
	s.state.order = append(s.state.order, obj.id)

	zap.S().Debugw("inserted object", "entity", entity, "id", obj.id)
	return obj.id, nil
}

// GetAttribute reads a stored attribute. Derived names are delegated to ComputeDerived.
func (s *ObjectStore) GetAttribute(id objgraph.ObjectID, name string) (objgraph.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.object(id, true)
	if err != nil {
		return objgraph.Null(), err
	}
	if _, ok := obj.entity.Attribute(name); ok {
		return obj.attrs[name], nil
	}
	if d, ok := obj.entity.DerivedAttribute(name); ok {
		return s.derive(obj, d)
	}
	return objgraph.Null(), objgraph.NewSchemaError(objgraph.SchemaErrorTypeNotFound, obj.entity.Name,
		"attribute '"+name+"' is not defined", nil)
}

func (s *ObjectStore) SetAttribute(id objgraph.ObjectID, name string, value objgraph.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(id, false)
	if err != nil {
		return err
	}
	attr, ok := obj.entity.Attribute(name)
	if !ok {
		return unknownAttribute(obj, name)
	}
	v, err := checkValue(obj, attr, value)
	if err != nil {
		return err
	}
	if obj.attrs[name] == v {
		return nil
	}
	obj.attrs[name] = v
	obj.touch()
	return nil
}

func (s *ObjectStore) ObjectState(id objgraph.ObjectID) (objgraph.LifecycleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, err := s.object(id, true)
	if err != nil {
		return "", err
	}
	return obj.state, nil
}

func (s *ObjectStore) EntityOf(id objgraph.ObjectID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, err := s.object(id, true)
	if err != nil {
		return "", err
	}
	return obj.entity.Name, nil
}

// Record exports a detached copy of an object. With no attrs every stored
// attribute is included; otherwise only the named stored or derived ones.
func (s *ObjectStore) Record(id objgraph.ObjectID, attrs ...string) (*objgraph.ObjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.object(id, true)
	if err != nil {
		return nil, err
	}
	rec := s.record(obj)

	derived := make(map[string]any)
	for _, name := range attrs {
		if _, ok := obj.entity.Attribute(name); ok {
			continue
		}
		d, ok := obj.entity.DerivedAttribute(name)
		if !ok {
			return nil, objgraph.NewSchemaError(objgraph.SchemaErrorTypeNotFound, obj.entity.Name,
				"attribute '"+name+"' is not defined", nil)
		}
		v, err := s.derive(obj, d)
		if err != nil {
			return nil, err
		}
		derived[name] = v.Native()
	}
	maps.Copy(rec.Attributes, derived)
	rec.Attributes = FilterAttributes(rec.Attributes, attrs)
	return rec, nil
}

func (s *ObjectStore) record(obj *managedObject) *objgraph.ObjectRecord {
	rec := &objgraph.ObjectRecord{
		ID:            obj.id,
		EntityName:    obj.entity.Name,
		State:         obj.state,
		Attributes:    make(map[string]any, len(obj.attrs)),
		Relationships: make(map[string][]objgraph.ObjectID, len(obj.rels)),
	}
	for name, v := range obj.attrs {
		rec.Attributes[name] = v.Native()
	}
	for _, rel := range obj.entity.Relationships {
		rec.Relationships[rel.Name] = slices.Clone(obj.rels[rel.Name])
	}
	return rec
}

// persisted reports whether id was part of the last committed state.
func (s *ObjectStore) persisted(id objgraph.ObjectID) bool {
	_, ok := s.committed.objects[id]
	return ok
}

func (s *ObjectStore) PendingChanges() objgraph.PendingChanges {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingChanges()
}

func (s *ObjectStore) pendingChanges() objgraph.PendingChanges {
	var pending objgraph.PendingChanges
	for _, id := range s.state.order {
		obj := s.state.objects[id]
		switch obj.state {
		case objgraph.StateNew:
			pending.Inserted = append(pending.Inserted, id)
		case objgraph.StateModified:
			pending.Updated = append(pending.Updated, id)
		case objgraph.StateDeleted:
			if s.persisted(id) {
				pending.Deleted = append(pending.Deleted, id)
			}
		}
	}
	return pending
}

func (s *ObjectStore) HasChanges() bool {
	p := s.PendingChanges()
	return len(p.Inserted)+len(p.Updated)+len(p.Deleted) > 0
}
