package objgraph

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Unbounded is the MaxCount of a relationship with no upper limit.
const Unbounded = 0

// DeleteRule says what happens to related objects when the owner is deleted.
type DeleteRule string

const (
	DeleteRuleNullify DeleteRule = "nullify"
	DeleteRuleCascade DeleteRule = "cascade"
	DeleteRuleDeny    DeleteRule = "deny"
)

func (r DeleteRule) Valid() bool {
	switch r {
	case DeleteRuleNullify, DeleteRuleCascade, DeleteRuleDeny:
		return true
	default:
		return false
	}
}

// EntityType describes one kind of managed object. It is frozen once registered.
type EntityType struct {
	Name          string                `json:"name"`
	Attributes    []AttributeDef        `json:"attributes"`
	Relationships []RelationshipDef     `json:"relationships,omitempty"`
	Derived       []DerivedAttributeDef `json:"derived,omitempty"`
}

// AttributeDef is a stored attribute. A null Default means none.
type AttributeDef struct {
	Name     string    `json:"name"`
	Kind     ValueKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Default  Value     `json:"default"`
}

// UnmarshalJSON decodes the definition and converts Default to Kind, so a
// float default written as 7000 stays a float.
func (a *AttributeDef) UnmarshalJSON(data []byte) error {
	type plain AttributeDef
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	def, err := ValueOfKind(decoded.Kind, decoded.Default.Native())
	if err != nil {
		return fmt.Errorf("default of attribute '%s': %w", decoded.Name, err)
	}
	decoded.Default = def
	*a = AttributeDef(decoded)
	return nil
}

// RelationshipDef is one direction of an edge between entity types.
// MaxCount == Unbounded means no upper limit; MaxCount == 1 is to-one.
type RelationshipDef struct {
	Name        string     `json:"name"`
	Destination string     `json:"destination"`
	MinCount    int        `json:"min_count,omitempty"`
	MaxCount    int        `json:"max_count"`
	Ordered     bool       `json:"ordered,omitempty"`
	DeleteRule  DeleteRule `json:"delete_rule"`
	Inverse     string     `json:"inverse"`
}

func (r RelationshipDef) IsToMany() bool { return r.MaxCount != 1 }

// Allows reports whether a collection of n objects fits within MaxCount.
func (r RelationshipDef) Allows(n int) bool {
	return r.MaxCount == Unbounded || n <= r.MaxCount
}

// AttributeReader gives a derivation rule read access to the owning object.
type AttributeReader interface {
	Get(name string) (Value, error)
}

// DeriveFunc computes a derived value. It must be pure.
type DeriveFunc func(r AttributeReader) (Value, error)

// DerivedAttributeDef is an attribute computed from other attributes of the
// same object. DependsOn lists every attribute the rule may read.
type DerivedAttributeDef struct {
	Name      string     `json:"name"`
	Kind      ValueKind  `json:"kind"`
	DependsOn []string   `json:"depends_on"`
	Derive    DeriveFunc `json:"-"`
}

// Attribute returns the stored attribute named name.
func (e *EntityType) Attribute(name string) (AttributeDef, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// Relationship returns the relationship named name.
func (e *EntityType) Relationship(name string) (RelationshipDef, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipDef{}, false
}

// DerivedAttribute returns the derived attribute named name.
func (e *EntityType) DerivedAttribute(name string) (DerivedAttributeDef, bool) {
	for _, d := range e.Derived {
		if d.Name == name {
			return d, true
		}
	}
	return DerivedAttributeDef{}, false
}

// AttributeKind resolves the kind of a stored or derived attribute.
func (e *EntityType) AttributeKind(name string) (ValueKind, bool) {
	if a, ok := e.Attribute(name); ok {
		return a.Kind, true
	}
	if d, ok := e.DerivedAttribute(name); ok {
		return d.Kind, true
	}
	return "", false
}

// Clone returns a deep copy of e.
func (e *EntityType) Clone() *EntityType {
	if e == nil {
		return nil
	}
	out := &EntityType{
		Name:          e.Name,
		Attributes:    slices.Clone(e.Attributes),
		Relationships: slices.Clone(e.Relationships),
		Derived:       make([]DerivedAttributeDef, len(e.Derived)),
	}
	for i, d := range e.Derived {
		d.DependsOn = slices.Clone(d.DependsOn)
		out.Derived[i] = d
	}
	return out
}

// LinkInverse adds fwd to src and inv to dst, pointing each at the other.
// src and dst may be the same entity.
func LinkInverse(src *EntityType, fwd RelationshipDef, dst *EntityType, inv RelationshipDef) {
	fwd.Destination = dst.Name
	fwd.Inverse = inv.Name
	inv.Destination = src.Name
	inv.Inverse = fwd.Name
	src.Relationships = append(src.Relationships, fwd)
	dst.Relationships = append(dst.Relationships, inv)
}

// ConcatPart is one piece of a concatenation: an attribute reference or a literal.
type ConcatPart struct {
	Attr    string `json:"attr,omitempty"`
	Literal string `json:"literal,omitempty"`
}

func AttrRef(name string) ConcatPart { return ConcatPart{Attr: name} }

func Literal(s string) ConcatPart { return ConcatPart{Literal: s} }

// Concat builds a rule joining the textual form of each part. Null renders empty.
func Concat(parts ...ConcatPart) DeriveFunc {
	parts = slices.Clone(parts)
	return func(r AttributeReader) (Value, error) {
		var b strings.Builder
		for _, p := range parts {
			if p.Attr == "" {
				b.WriteString(p.Literal)
				continue
			}
			v, err := r.Get(p.Attr)
			if err != nil {
				return Null(), err
			}
			if !v.IsNull() {
				b.WriteString(v.String())
			}
		}
		return Text(b.String()), nil
	}
}

// ConcatAttribute declares a text attribute derived by concatenating parts.
func ConcatAttribute(name string, parts ...ConcatPart) DerivedAttributeDef {
	var deps []string
	for _, p := range parts {
		if p.Attr != "" && !slices.Contains(deps, p.Attr) {
			deps = append(deps, p.Attr)
		}
	}
	return DerivedAttributeDef{
		Name:      name,
		Kind:      KindText,
		DependsOn: deps,
		Derive:    Concat(parts...),
	}
}

// DerivationCatalog names host-provided derivation functions that model
// files can reference.
type DerivationCatalog map[string]DeriveFunc
