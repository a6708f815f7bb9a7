package objgraph

// SchemaRegistry holds the entity types an object context manages.
// Implementations validate definitions on Register and are read-only afterwards.
type SchemaRegistry interface {
	// Register adds entity types as one batch so mutually inverse types can
	// refer to each other. Nothing is registered if any definition is invalid.
	Register(entities ...*EntityType) error
	// Resolve returns a copy of the named entity type.
	Resolve(name string) (*EntityType, error)
	// ListEntities returns registered names in registration order.
	ListEntities() []string
}
