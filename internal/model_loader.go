package internal

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

//go:embed model_schema.json
var modelSchemaJSON []byte

var (
	modelSchemaOnce     sync.Once
	modelSchemaResolved *jsonschema.Resolved
	modelSchemaErr      error
)

func modelSchema() (*jsonschema.Resolved, error) {
	modelSchemaOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal(modelSchemaJSON, &schema); err != nil {
			modelSchemaErr = fmt.Errorf("failed to unmarshal model schema: %w", err)
			return
		}
		modelSchemaResolved, modelSchemaErr = schema.Resolve(&jsonschema.ResolveOptions{})
		if modelSchemaErr != nil {
			modelSchemaErr = fmt.Errorf("failed to resolve model schema: %w", modelSchemaErr)
		}
	})
	return modelSchemaResolved, modelSchemaErr
}

// Model is one parsed model document.
type Model struct {
	Name     string
	Source   string
	Entities []*objgraph.EntityType
}

type modelDocument struct {
	Name     string           `json:"name"`
	Entities []entityDocument `json:"entities"`
}

type entityDocument struct {
	Name          string                 `json:"name"`
	Attributes    []attributeDocument    `json:"attributes"`
	Relationships []relationshipDocument `json:"relationships"`
	Derived       []derivedDocument      `json:"derived"`
}

type attributeDocument struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
	Default  any    `json:"default"`
}

type relationshipDocument struct {
	Name        string `json:"name"`
	Destination string `json:"destination"`
	Inverse     string `json:"inverse"`
	Min         int    `json:"min"`
	Max         int    `json:"max"`
	Ordered     bool   `json:"ordered"`
	DeleteRule  string `json:"delete_rule"`
}

type derivedDocument struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Concat    []string `json:"concat"`
	Function  string   `json:"function"`
	DependsOn []string `json:"depends_on"`
}

// ParseModel validates data against the model meta-schema and builds entity
// types. Derived attributes use either a concat list, where "$name" refers to
// an attribute and "$$" escapes a literal dollar, or a catalog function.
func ParseModel(data []byte, catalog objgraph.DerivationCatalog) (*Model, error) {
	resolved, err := modelSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidFormat, "", "model is not valid JSON", err)
	}
	if err := resolved.Validate(raw); err != nil {
		return nil, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidFormat, "", "model does not match the model schema", err)
	}

	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidFormat, "", "failed to decode model", err)
	}

	model := &Model{Name: doc.Name}
	for _, ed := range doc.Entities {
		entity, err := buildEntity(ed, catalog)
		if err != nil {
			return nil, err
		}
		model.Entities = append(model.Entities, entity)
	}
	return model, nil
}

func buildEntity(ed entityDocument, catalog objgraph.DerivationCatalog) (*objgraph.EntityType, error) {
	entity := &objgraph.EntityType{Name: ed.Name}

	for _, ad := range ed.Attributes {
		kind := objgraph.ValueKind(ad.Kind)
		def, err := objgraph.ValueOfKind(kind, ad.Default)
		if err != nil {
			return nil, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, ed.Name,
				fmt.Sprintf("attribute '%s' has an invalid default", ad.Name), err)
		}
		entity.Attributes = append(entity.Attributes, objgraph.AttributeDef{
			Name:     ad.Name,
			Kind:     kind,
			Required: ad.Required,
			Default:  def,
		})
	}

	for _, rd := range ed.Relationships {
		entity.Relationships = append(entity.Relationships, objgraph.RelationshipDef{
			Name:        rd.Name,
			Destination: rd.Destination,
			Inverse:     rd.Inverse,
			MinCount:    rd.Min,
			MaxCount:    rd.Max,
			Ordered:     rd.Ordered,
			DeleteRule:  objgraph.DeleteRule(rd.DeleteRule),
		})
	}

	for _, dd := range ed.Derived {
		derived, err := buildDerived(ed.Name, dd, catalog)
		if err != nil {
			return nil, err
		}
		entity.Derived = append(entity.Derived, derived)
	}
	return entity, nil
}

func buildDerived(entity string, dd derivedDocument, catalog objgraph.DerivationCatalog) (objgraph.DerivedAttributeDef, error) {
	switch {
	case len(dd.Concat) > 0 && dd.Function != "":
		return objgraph.DerivedAttributeDef{}, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, entity,
			fmt.Sprintf("derived attribute '%s' sets both concat and function", dd.Name), nil)
	case len(dd.Concat) > 0:
		if dd.Kind != string(objgraph.KindText) {
			return objgraph.DerivedAttributeDef{}, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, entity,
				fmt.Sprintf("concat attribute '%s' must be text", dd.Name), nil)
		}
		parts := make([]objgraph.ConcatPart, 0, len(dd.Concat))
		for _, item := range dd.Concat {
			switch {
			case strings.HasPrefix(item, "$$"):
				parts = append(parts, objgraph.Literal(item[1:]))
			case strings.HasPrefix(item, "$"):
				parts = append(parts, objgraph.AttrRef(item[1:]))
			default:
				parts = append(parts, objgraph.Literal(item))
			}
		}
		return objgraph.ConcatAttribute(dd.Name, parts...), nil
	case dd.Function != "":
		fn, ok := catalog[dd.Function]
		if !ok {
			return objgraph.DerivedAttributeDef{}, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, entity,
				fmt.Sprintf("derived attribute '%s' uses unknown function '%s'", dd.Name, dd.Function), nil)
		}
		return objgraph.DerivedAttributeDef{
			Name:      dd.Name,
			Kind:      objgraph.ValueKind(dd.Kind),
			DependsOn: dd.DependsOn,
			Derive:    fn,
		}, nil
	default:
		return objgraph.DerivedAttributeDef{}, objgraph.NewSchemaError(objgraph.SchemaErrorTypeInvalidDefinition, entity,
			fmt.Sprintf("derived attribute '%s' needs concat or function", dd.Name), nil)
	}
}

// LoadModelFile reads and parses one model file.
func LoadModelFile(path string, catalog objgraph.DerivationCatalog) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	model, err := ParseModel(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	model.Source = path
	if model.Name == "" {
		model.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return model, nil
}

// LoadModelDir parses every *.json file in dir, in filename order.
func LoadModelDir(dir string, catalog objgraph.DerivationCatalog) ([]*Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	models := make([]*Model, 0, len(files))
	for _, name := range files {
		model, err := LoadModelFile(filepath.Join(dir, name), catalog)
		if err != nil {
			return nil, err
		}
		zap.S().Debugw("loaded model", "file", name, "model", model.Name, "entities", len(model.Entities))
		models = append(models, model)
	}
	return models, nil
}

// RegisterModels registers the entities of every model as one batch so
// relationships may cross model files.
func RegisterModels(registry *EntityRegistry, models ...*Model) error {
	var entities []*objgraph.EntityType
	for _, m := range models {
		entities = append(entities, m.Entities...)
	}
	return registry.Register(entities...)
}
