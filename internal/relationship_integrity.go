package internal

import (
	"fmt"
	"slices"

	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

type relKey struct {
	id  objgraph.ObjectID
	rel string
}

// relEdit stages relationship lists so every bound can be checked before
// anything in the store changes.
type relEdit struct {
	store *ObjectStore
	lists map[relKey][]objgraph.ObjectID
}

func (s *ObjectStore) newRelEdit() *relEdit {
	return &relEdit{
		store: s,
		lists: make(map[relKey][]objgraph.ObjectID),
	}
}

func (e *relEdit) get(id objgraph.ObjectID, rel string) []objgraph.ObjectID {
	if ids, ok := e.lists[relKey{id, rel}]; ok {
		return ids
	}
	return e.store.state.objects[id].rels[rel]
}

func (e *relEdit) set(id objgraph.ObjectID, rel string, ids []objgraph.ObjectID) {
	e.lists[relKey{id, rel}] = ids
}

func (e *relEdit) appendID(id objgraph.ObjectID, rel string, target objgraph.ObjectID) {
	current := e.get(id, rel)
	if slices.Contains(current, target) {
		return
	}
	e.set(id, rel, append(slices.Clone(current), target))
}

func (e *relEdit) removeID(id objgraph.ObjectID, rel string, target objgraph.ObjectID) {
	current := e.get(id, rel)
	if !slices.Contains(current, target) {
		return
	}
	e.set(id, rel, slices.DeleteFunc(slices.Clone(current), func(v objgraph.ObjectID) bool { return v == target }))
}

// link adds target to src.rel and src to the target's inverse. A to-one
// inverse that already has an owner is re-pointed at src.
func (e *relEdit) link(src *managedObject, rel objgraph.RelationshipDef, target objgraph.ObjectID) {
	e.appendID(src.id, rel.Name, target)

	dst := e.store.state.objects[target]
	inv, _ := dst.entity.Relationship(rel.Inverse)
	if !inv.IsToMany() {
		for _, owner := range e.get(target, inv.Name) {
			if owner != src.id {
				e.removeID(owner, rel.Name, target)
				e.removeID(target, inv.Name, owner)
			}
		}
	}
	e.appendID(target, inv.Name, src.id)
}

// unlink removes target from src.rel and src from the target's inverse.
func (e *relEdit) unlink(src *managedObject, rel objgraph.RelationshipDef, target objgraph.ObjectID) {
	e.removeID(src.id, rel.Name, target)
	e.removeID(target, rel.Inverse, src.id)
}

// validate checks every staged list against its relationship's maximum.
func (e *relEdit) validate() error {
	for key, ids := range e.lists {
		obj := e.store.state.objects[key.id]
		rel, _ := obj.entity.Relationship(key.rel)
		if !rel.Allows(len(ids)) {
			return objgraph.NewCardinalityError(rel.Name, len(ids), rel.MaxCount).WithObject(obj.id, obj.entity.Name)
		}
	}
	return nil
}

func (e *relEdit) apply() {
	for key, ids := range e.lists {
		obj := e.store.state.objects[key.id]
		if slices.Equal(obj.rels[key.rel], ids) {
			continue
		}
		if len(ids) == 0 {
			delete(obj.rels, key.rel)
		} else {
			obj.rels[key.rel] = ids
		}
		obj.touch()
	}
}

func (s *ObjectStore) relationship(obj *managedObject, name string) (objgraph.RelationshipDef, error) {
	rel, ok := obj.entity.Relationship(name)
	if !ok {
		return rel, objgraph.NewValidationError(objgraph.ErrCodeUnknownRelationship, name,
			"relationship is not defined on entity").WithObject(obj.id, obj.entity.Name)
	}
	return rel, nil
}

// resolveTargets dedupes targets and checks each is live and of the destination type.
func (s *ObjectStore) resolveTargets(obj *managedObject, rel objgraph.RelationshipDef, targets []objgraph.ObjectID) ([]objgraph.ObjectID, error) {
	targets = dedupe(targets)
	for _, id := range targets {
		dst, err := s.object(id, false)
		if err != nil {
			return nil, err
		}
		if dst.entity.Name != rel.Destination {
			return nil, objgraph.NewValidationError(objgraph.ErrCodeDestinationMismatch, rel.Name,
				fmt.Sprintf("target %s is a %s, expected %s", id, dst.entity.Name, rel.Destination)).
				WithObject(obj.id, obj.entity.Name)
		}
	}
	return targets, nil
}

// GetRelationship returns related identities in collection order.
func (s *ObjectStore) GetRelationship(id objgraph.ObjectID, name string) ([]objgraph.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.object(id, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.relationship(obj, name); err != nil {
		return nil, err
	}
	return slices.Clone(obj.rels[name]), nil
}

// SetRelationship replaces the collection with targets, in the given order.
func (s *ObjectStore) SetRelationship(id objgraph.ObjectID, name string, targets ...objgraph.ObjectID) error {
	return s.editRelationship(id, name, targets, func(e *relEdit, obj *managedObject, rel objgraph.RelationshipDef, targets []objgraph.ObjectID) {
		keep := NewSet(targets...)
		for _, old := range slices.Clone(obj.rels[rel.Name]) {
			if !keep.Contains(old) {
				e.unlink(obj, rel, old)
			}
		}
		for _, target := range targets {
			e.link(obj, rel, target)
		}
		e.set(obj.id, rel.Name, targets)
	})
}

// AddToRelationship appends targets not already present.
func (s *ObjectStore) AddToRelationship(id objgraph.ObjectID, name string, targets ...objgraph.ObjectID) error {
	return s.editRelationship(id, name, targets, func(e *relEdit, obj *managedObject, rel objgraph.RelationshipDef, targets []objgraph.ObjectID) {
		for _, target := range targets {
			e.link(obj, rel, target)
		}
	})
}

// RemoveFromRelationship removes targets; ids that are not members are ignored.
func (s *ObjectStore) RemoveFromRelationship(id objgraph.ObjectID, name string, targets ...objgraph.ObjectID) error {
	return s.editRelationship(id, name, targets, func(e *relEdit, obj *managedObject, rel objgraph.RelationshipDef, targets []objgraph.ObjectID) {
		for _, target := range targets {
			e.unlink(obj, rel, target)
		}
	})
}

func (s *ObjectStore) editRelationship(
	id objgraph.ObjectID,
	name string,
	targets []objgraph.ObjectID,
	stage func(e *relEdit, obj *managedObject, rel objgraph.RelationshipDef, targets []objgraph.ObjectID),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(id, false)
	if err != nil {
		return err
	}
	rel, err := s.relationship(obj, name)
	if err != nil {
		return err
	}
	targets, err = s.resolveTargets(obj, rel, targets)
	if err != nil {
		return err
	}

	edit := s.newRelEdit()
	stage(edit, obj, rel, targets)
	if err := edit.validate(); err != nil {
		zap.S().Debugw("relationship edit rejected", "entity", obj.entity.Name, "id", id, "relationship", name, "error", err)
		return err
	}
	edit.apply()
	return nil
}

// Delete marks id deleted and applies every delete rule. Cascades are
// followed breadth first with a visited set, so each object is deleted once.
func (s *ObjectStore) Delete(id objgraph.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.object(id, false)
	if err != nil {
		return err
	}
	if err := denyCheck(root, nil); err != nil {
		return err
	}

	closure, err := s.cascadeClosure(root)
	if err != nil {
		return err
	}
	for _, cid := range closure.ToSlice()[1:] {
		if err := denyCheck(s.state.objects[cid], closure); err != nil {
			return err
		}
	}

	edit := s.newRelEdit()
	for _, cid := range closure.ToSlice() {
		obj := s.state.objects[cid]
		for _, rel := range obj.entity.Relationships {
			for _, target := range obj.rels[rel.Name] {
				if !closure.Contains(target) {
					edit.removeID(target, rel.Inverse, cid)
				}
			}
		}
	}
	edit.apply()

	for _, cid := range closure.ToSlice() {
		obj := s.state.objects[cid]
		clear(obj.rels)
		obj.state = objgraph.StateDeleted
	}

	zap.S().Debugw("deleted object", "entity", root.entity.Name, "id", id, "cascaded", closure.Size()-1)
	return nil
}

// denyCheck fails when a deny relationship of obj holds objects outside allowed.
func denyCheck(obj *managedObject, allowed *Set[objgraph.ObjectID]) error {
	for _, rel := range obj.entity.Relationships {
		if rel.DeleteRule != objgraph.DeleteRuleDeny {
			continue
		}
		blocking := 0
		for _, target := range obj.rels[rel.Name] {
			if allowed == nil || !allowed.Contains(target) {
				blocking++
			}
		}
		if blocking > 0 {
			return objgraph.NewDenyDeleteError(rel.Name, blocking).WithObject(obj.id, obj.entity.Name)
		}
	}
	return nil
}

// cascadeClosure returns root followed by every object reachable through
// cascade relationships, in breadth-first order.
func (s *ObjectStore) cascadeClosure(root *managedObject) (*Set[objgraph.ObjectID], error) {
	maxDepth := s.config.Store.MaxCascadeDepth
	visited := NewSet(root.id)
	frontier := []objgraph.ObjectID{root.id}

	for depth := 1; len(frontier) > 0; depth++ {
		var next []objgraph.ObjectID
		for _, id := range frontier {
			obj := s.state.objects[id]
			for _, rel := range obj.entity.Relationships {
				if rel.DeleteRule != objgraph.DeleteRuleCascade {
					continue
				}
				for _, target := range obj.rels[rel.Name] {
					if visited.Add(target) {
						next = append(next, target)
					}
				}
			}
		}
		if len(next) > 0 && maxDepth > 0 && depth > maxDepth {
			return nil, objgraph.NewGraphError(objgraph.ErrorTypeValidation, objgraph.ErrCodeCascadeDepthExceeded,
				fmt.Sprintf("cascade exceeds maximum depth %d", maxDepth)).WithObject(root.id, root.entity.Name)
		}
		frontier = next
	}
	return visited, nil
}
