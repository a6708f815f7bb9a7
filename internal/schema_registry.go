package internal

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

// EntityRegistry is the in-memory schema registry backing an object store.
type EntityRegistry struct {
	mu       sync.RWMutex
	order    []string
	entities map[string]*objgraph.EntityType
}

// NewEntityRegistry creates an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		entities: make(map[string]*objgraph.EntityType),
	}
}

var _ objgraph.SchemaRegistry = (*EntityRegistry)(nil)

// Register validates the batch against itself and everything already
// registered, then stores deep copies. Nothing is stored on error.
func (r *EntityRegistry) Register(entities ...*objgraph.EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]*objgraph.EntityType, len(entities))
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.Name == "" {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, "", "entity name is required", nil)
		}
		if _, exists := r.entities[e.Name]; exists {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeDuplicate, e.Name, "entity is already registered", nil)
		}
		if _, exists := batch[e.Name]; exists {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeDuplicate, e.Name, "entity appears twice in one registration", nil)
		}
		copied := e.Clone()
		normalizeEntity(copied)
		batch[e.Name] = copied
		names = append(names, e.Name)
	}

	lookup := func(name string) (*objgraph.EntityType, bool) {
		if e, ok := batch[name]; ok {
			return e, true
		}
		e, ok := r.entities[name]
		return e, ok
	}

	for _, name := range names {
		e := batch[name]
		if err := validateMembers(e); err != nil {
			return err
		}
		if err := validateRelationships(e, lookup); err != nil {
			return err
		}
		if err := validateDerivations(e); err != nil {
			return err
		}
	}

	for _, name := range names {
		r.entities[name] = batch[name]
		r.order = append(r.order, name)
		zap.S().Debugw("registered entity", "entity", name,
			"attributes", len(batch[name].Attributes),
			"relationships", len(batch[name].Relationships),
			"derived", len(batch[name].Derived))
	}
	return nil
}

// Resolve returns a copy of the named entity type.
func (r *EntityRegistry) Resolve(name string) (*objgraph.EntityType, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, entityNotFound(name)
	}
	return e.Clone(), nil
}

// ListEntities returns registered names in registration order.
func (r *EntityRegistry) ListEntities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// lookup returns the frozen definition itself; callers must not modify it.
func (r *EntityRegistry) lookup(name string) (*objgraph.EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

func entityNotFound(name string) *objgraph.SchemaError {
	return objgraph.NewSchemaError(objgraph.SchemaErrorTypeNotFound, name, "entity is not registered", nil)
}

func normalizeEntity(e *objgraph.EntityType) {
	for i := range e.Relationships {
		if e.Relationships[i].DeleteRule == "" {
			e.Relationships[i].DeleteRule = objgraph.DeleteRuleNullify
		}
	}
	for i, a := range e.Attributes {
		if a.Kind == objgraph.KindFloat && a.Default.Kind() == objgraph.KindInteger {
			n, _ := a.Default.AsInteger()
			e.Attributes[i].Default = objgraph.Float(float64(n))
		}
	}
}

func invalidDefinition(entity, format string, args ...any) *objgraph.SchemaError {
	return objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, entity, fmt.Sprintf(format, args...), nil)
}

// validateMembers checks that attribute, relationship and derived names share
// one namespace and that kinds and defaults are consistent.
func validateMembers(e *objgraph.EntityType) error {
	seen := NewSet[string]()
	claim := func(name string) error {
		if name == "" {
			return invalidDefinition(e.Name, "member name is required")
		}
		if seen.Contains(name) {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeDuplicate, e.Name,
				fmt.Sprintf("member '%s' is declared more than once", name), nil)
		}
		seen.Add(name)
		return nil
	}

	for _, a := range e.Attributes {
		if err := claim(a.Name); err != nil {
			return err
		}
		if !a.Kind.Valid() {
			return invalidDefinition(e.Name, "attribute '%s' has unsupported kind '%s'", a.Name, a.Kind)
		}
		if !a.Default.IsNull() && a.Default.Kind() != a.Kind {
			return invalidDefinition(e.Name, "attribute '%s' default is %s, expected %s", a.Name, a.Default.Kind(), a.Kind)
		}
	}
	for _, rel := range e.Relationships {
		if err := claim(rel.Name); err != nil {
			return err
		}
	}
	for _, d := range e.Derived {
		if err := claim(d.Name); err != nil {
			return err
		}
		if !d.Kind.Valid() {
			return invalidDefinition(e.Name, "derived attribute '%s' has unsupported kind '%s'", d.Name, d.Kind)
		}
		if d.Derive == nil {
			return invalidDefinition(e.Name, "derived attribute '%s' has no derivation function", d.Name)
		}
	}
	return nil
}

func validateRelationships(e *objgraph.EntityType, lookup func(string) (*objgraph.EntityType, bool)) error {
	for _, rel := range e.Relationships {
		if !rel.DeleteRule.Valid() {
			return invalidDefinition(e.Name, "relationship '%s' has unsupported delete rule '%s'", rel.Name, rel.DeleteRule)
		}
		if rel.MinCount < 0 || rel.MaxCount < 0 {
			return invalidDefinition(e.Name, "relationship '%s' has negative cardinality", rel.Name)
		}
		if rel.MaxCount != objgraph.Unbounded && rel.MinCount > rel.MaxCount {
			return invalidDefinition(e.Name, "relationship '%s' min %d exceeds max %d", rel.Name, rel.MinCount, rel.MaxCount)
		}

		dest, ok := lookup(rel.Destination)
		if !ok {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeNotFound, e.Name,
				fmt.Sprintf("relationship '%s' points at unregistered entity '%s'", rel.Name, rel.Destination), nil)
		}
		if rel.Inverse == "" {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidInverse, e.Name,
				fmt.Sprintf("relationship '%s' declares no inverse", rel.Name), nil)
		}
		inv, ok := dest.Relationship(rel.Inverse)
		if !ok {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidInverse, e.Name,
				fmt.Sprintf("inverse '%s' of relationship '%s' does not exist on '%s'", rel.Inverse, rel.Name, dest.Name), nil)
		}
		if inv.Destination != e.Name || inv.Inverse != rel.Name {
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidInverse, e.Name,
				fmt.Sprintf("inverse '%s.%s' does not point back at '%s.%s'", dest.Name, inv.Name, e.Name, rel.Name), nil)
		}
	}
	return nil
}

// validateDerivations rejects unknown dependencies and cycles between derived
// attributes using a three-color depth-first search.
func validateDerivations(e *objgraph.EntityType) error {
	const (
		white = iota
		grey
		black
	)

	derived := make(map[string]objgraph.DerivedAttributeDef, len(e.Derived))
	for _, d := range e.Derived {
		derived[d.Name] = d
	}

	for _, d := range e.Derived {
		for _, dep := range d.DependsOn {
			if dep == d.Name {
				return objgraph.NewSchemaError(objgraph.SchemaErrorTypeDerivationCycle, e.Name,
					fmt.Sprintf("derived attribute '%s' depends on itself", d.Name), nil)
			}
			if _, ok := e.Attribute(dep); ok {
				continue
			}
			if _, ok := derived[dep]; ok {
				continue
			}
			return invalidDefinition(e.Name, "derived attribute '%s' depends on unknown attribute '%s'", d.Name, dep)
		}
	}

	color := make(map[string]int, len(derived))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case grey:
			return objgraph.NewSchemaError(objgraph.SchemaErrorTypeDerivationCycle, e.Name,
				fmt.Sprintf("derivation cycle: %v", append(path, name)), nil)
		case black:
			return nil
		}
		color[name] = grey
		for _, dep := range derived[name].DependsOn {
			if _, ok := derived[dep]; !ok {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, d := range e.Derived {
		if err := visit(d.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
