package objgraph

import (
	"context"
	"iter"
)

// ObjectContext is a managed set of live objects with a commit boundary.
type ObjectContext interface {
	Registry() SchemaRegistry

	// Object lifecycle
	Insert(entity string, values map[string]Value) (ObjectID, error)
	Delete(id ObjectID) error
	ObjectState(id ObjectID) (LifecycleState, error)
	EntityOf(id ObjectID) (string, error)

	// Attributes
	GetAttribute(id ObjectID, name string) (Value, error)
	SetAttribute(id ObjectID, name string, value Value) error
	ComputeDerived(id ObjectID, name string) (Value, error)
	Record(id ObjectID, attrs ...string) (*ObjectRecord, error)

	// Relationships
	GetRelationship(id ObjectID, name string) ([]ObjectID, error)
	SetRelationship(id ObjectID, name string, targets ...ObjectID) error
	AddToRelationship(id ObjectID, name string, targets ...ObjectID) error
	RemoveFromRelationship(id ObjectID, name string, targets ...ObjectID) error

	// Query
	Query(req *FetchRequest) (ResultSet, error)

	// Transaction boundary
	Commit(ctx context.Context) (*ChangeSet, error)
	Rollback()
	HasChanges() bool
	PendingChanges() PendingChanges

	// Close releases the sink, if any.
	Close() error
}

// ResultSet is a query bound to a live context. Every call re-evaluates the
// request against the current contents.
type ResultSet interface {
	All() iter.Seq2[ObjectID, error]
	IDs() ([]ObjectID, error)
	Count() (int, error)
}

// Sink makes committed change sets durable. Persist runs inside Commit; an
// error aborts the commit and leaves the context unchanged.
type Sink interface {
	Name() string
	Persist(ctx context.Context, changes *ChangeSet) error
	Close() error
}

// SequenceReporter is implemented by sinks that keep a history of change
// sets. A new context continues numbering after LastSequence so runs against
// the same sink never reuse a sequence number.
type SequenceReporter interface {
	LastSequence(ctx context.Context) (int64, error)
}
