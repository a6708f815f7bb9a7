package objgraph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectID identifies a managed object for the lifetime of its context.
// Identities are UUIDv7 values and are never reused.
type ObjectID uuid.UUID

// NilObjectID is the zero identity; no managed object ever carries it.
var NilObjectID ObjectID

// NewObjectID allocates a fresh, time-ordered identity.
func NewObjectID() ObjectID {
	return ObjectID(uuid.Must(uuid.NewV7()))
}

// ParseObjectID parses the canonical UUID text form.
func ParseObjectID(s string) (ObjectID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilObjectID, err
	}
	return ObjectID(id), nil
}

func (id ObjectID) String() string { return uuid.UUID(id).String() }

func (id ObjectID) IsNil() bool { return id == NilObjectID }

// UUID returns the identity as a uuid.UUID for drivers that understand it.
func (id ObjectID) UUID() uuid.UUID { return uuid.UUID(id) }

func (id ObjectID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ObjectID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = ObjectID(u)
	return nil
}

// LifecycleState tracks a managed object relative to the last commit.
type LifecycleState string

const (
	StateNew      LifecycleState = "new"
	StateSaved    LifecycleState = "saved"
	StateModified LifecycleState = "modified"
	StateDeleted  LifecycleState = "deleted"
)

// FilterType defines supported comparison operations
type FilterType string

const (
	FilterEquals      FilterType = "equals"
	FilterNotEquals   FilterType = "not_equals"
	FilterStartsWith  FilterType = "starts_with"
	FilterContains    FilterType = "contains"
	FilterGreaterThan FilterType = "gt"
	FilterLessThan    FilterType = "lt"
	FilterGreaterEq   FilterType = "gte"
	FilterLessEq      FilterType = "lte"
	FilterIn          FilterType = "in"
	FilterNotIn       FilterType = "not_in"
)

// SortOrder defines sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortKey orders query results by one attribute.
type SortKey struct {
	Attr      string    `json:"attr"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// Asc sorts ascending by attr.
func Asc(attr string) SortKey { return SortKey{Attr: attr, SortOrder: SortOrderAsc} }

// Desc sorts descending by attr.
func Desc(attr string) SortKey { return SortKey{Attr: attr, SortOrder: SortOrderDesc} }

// FetchRequest describes a query against one entity type.
type FetchRequest struct {
	EntityName string    `json:"entity_name" validate:"required"`
	Condition  Condition `json:"condition,omitempty"`
	SortKeys   []SortKey `json:"sort_keys,omitempty"`
	Offset     int       `json:"offset,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// UnmarshalJSON decodes the condition tree into its concrete node types.
func (r *FetchRequest) UnmarshalJSON(data []byte) error {
	type requestAlias struct {
		EntityName string          `json:"entity_name"`
		Condition  json.RawMessage `json:"condition"`
		SortKeys   []SortKey       `json:"sort_keys"`
		Offset     int             `json:"offset"`
		Limit      int             `json:"limit"`
	}
	var alias requestAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	r.EntityName = alias.EntityName
	r.SortKeys = alias.SortKeys
	r.Offset = alias.Offset
	r.Limit = alias.Limit
	r.Condition = nil
	if len(alias.Condition) > 0 && string(alias.Condition) != "null" {
		cond, err := unmarshalCondition(alias.Condition)
		if err != nil {
			return err
		}
		r.Condition = cond
	}
	return nil
}

// ObjectRecord is a detached copy of one managed object.
type ObjectRecord struct {
	ID            ObjectID              `json:"id"`
	EntityName    string                `json:"entity"`
	State         LifecycleState        `json:"state,omitempty"`
	Attributes    map[string]any        `json:"attributes"`
	Relationships map[string][]ObjectID `json:"relationships,omitempty"`
}

// ObjectRef names a managed object without its contents.
type ObjectRef struct {
	ID         ObjectID `json:"id"`
	EntityName string   `json:"entity"`
}

// ChangeSet is everything one successful commit made durable.
type ChangeSet struct {
	Sequence    int64           `json:"sequence"`
	CommittedAt time.Time       `json:"committed_at"`
	Inserted    []*ObjectRecord `json:"inserted,omitempty"`
	Updated     []*ObjectRecord `json:"updated,omitempty"`
	Deleted     []ObjectRef     `json:"deleted,omitempty"`
}

// IsEmpty reports whether the change set carries no changes.
func (c *ChangeSet) IsEmpty() bool {
	return c == nil || len(c.Inserted)+len(c.Updated)+len(c.Deleted) == 0
}

// PendingChanges lists identities with uncommitted changes, in insertion order.
type PendingChanges struct {
	Inserted []ObjectID `json:"inserted"`
	Updated  []ObjectID `json:"updated"`
	Deleted  []ObjectID `json:"deleted"`
}

type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// AttributeSource resolves attribute values (stored or derived) of one object.
type AttributeSource interface {
	// Attribute returns the value and declared kind of the named attribute.
	Attribute(name string) (Value, ValueKind, error)
}

// Condition is a node in a filter tree evaluated against one object.
type Condition interface {
	IsLeaf() bool
	// ReferencedAttributes lists attribute names the node reads.
	ReferencedAttributes() []string
	Evaluate(src AttributeSource) (bool, error)
}

// CompositeCondition joins child conditions with and/or.
type CompositeCondition struct {
	Logic      Logic       `json:"l"`
	Conditions []Condition `json:"c"`
}

func (c *CompositeCondition) IsLeaf() bool { return false }

// UnmarshalJSON customizes decoding so that nested conditions are turned into the
// appropriate concrete condition implementations.
func (c *CompositeCondition) UnmarshalJSON(data []byte) error {
	type compositeAlias struct {
		Logic      *Logic            `json:"l"`
		Conditions []json.RawMessage `json:"c"`
	}

	var alias compositeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	if alias.Logic == nil {
		return fmt.Errorf("composite condition missing logic")
	}

	switch *alias.Logic {
	case LogicAnd, LogicOr:
		c.Logic = *alias.Logic
	default:
		return fmt.Errorf("unknown logic: %s", *alias.Logic)
	}

	if len(alias.Conditions) == 0 {
		c.Conditions = nil
		return nil
	}

	conditions := make([]Condition, 0, len(alias.Conditions))
	for _, raw := range alias.Conditions {
		child, err := unmarshalCondition(raw)
		if err != nil {
			return err
		}
		conditions = append(conditions, child)
	}

	c.Conditions = conditions
	return nil
}

// KvCondition is the compact leaf form: Value is "op:value" or a bare value
// meaning equals, parsed according to the attribute's kind.
type KvCondition struct {
	Attr  string `json:"a"`
	Value string `json:"v"`
}

func (kv *KvCondition) IsLeaf() bool { return true }

// UnmarshalJSON ensures short-hand keys are present.
func (kv *KvCondition) UnmarshalJSON(data []byte) error {
	type kvAlias struct {
		Attr  string `json:"a"`
		Value string `json:"v"`
	}

	var alias kvAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	if alias.Attr == "" {
		return fmt.Errorf("kv condition missing attr 'a'")
	}

	if alias.Value == "" {
		return fmt.Errorf("kv condition missing value 'v'")
	}

	kv.Attr = alias.Attr
	kv.Value = alias.Value
	return nil
}

// Comparison is the typed leaf form used from Go code.
type Comparison struct {
	Attr   string
	Op     FilterType
	Values []Value
}

func (c *Comparison) IsLeaf() bool { return true }

// Compare builds a typed comparison leaf. in/not_in take any number of operands.
func Compare(attr string, op FilterType, operands ...Value) *Comparison {
	return &Comparison{Attr: attr, Op: op, Values: operands}
}

// And joins conditions with logical and.
func And(conds ...Condition) *CompositeCondition {
	return &CompositeCondition{Logic: LogicAnd, Conditions: conds}
}

// Or joins conditions with logical or.
func Or(conds ...Condition) *CompositeCondition {
	return &CompositeCondition{Logic: LogicOr, Conditions: conds}
}

// unmarshalCondition inspects the incoming JSON payload and instantiates the
// correct Condition implementation (composite vs kv).
func unmarshalCondition(data []byte) (Condition, error) {
	var discriminator struct {
		Logic *Logic  `json:"l"`
		Attr  *string `json:"a"`
	}

	if err := json.Unmarshal(data, &discriminator); err != nil {
		return nil, err
	}

	if discriminator.Logic != nil {
		var composite CompositeCondition
		if err := json.Unmarshal(data, &composite); err != nil {
			return nil, err
		}
		return &composite, nil
	}

	if discriminator.Attr != nil {
		var kv KvCondition
		if err := json.Unmarshal(data, &kv); err != nil {
			return nil, err
		}
		return &kv, nil
	}

	return nil, fmt.Errorf("invalid condition payload: expected 'l' or 'a'")
}
