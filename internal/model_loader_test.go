package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/objgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dinosaurModel = `{
  "name": "dinosaurs",
  "entities": [
    {
      "name": "Dinosaur",
      "attributes": [
        {"name": "name", "kind": "text", "required": true},
        {"name": "species", "kind": "text", "default": ""},
        {"name": "weight", "kind": "float", "default": 0},
        {"name": "legs", "kind": "integer", "default": 2}
      ],
      "relationships": [
        {"name": "torches", "destination": "Torch", "inverse": "owner", "ordered": true, "delete_rule": "cascade"}
      ],
      "derived": [
        {"name": "displayName", "kind": "text", "concat": ["$name", " the ", "$species"]},
        {"name": "price", "kind": "text", "concat": ["$$", "$weight"]},
        {"name": "heavy", "kind": "boolean", "function": "isHeavy", "depends_on": ["weight"]}
      ]
    },
    {
      "name": "Torch",
      "attributes": [{"name": "label", "kind": "text"}],
      "relationships": [
        {"name": "owner", "destination": "Dinosaur", "inverse": "torches", "max": 1}
      ]
    }
  ]
}`

func testCatalog() objgraph.DerivationCatalog {
	return objgraph.DerivationCatalog{
		"isHeavy": func(r objgraph.AttributeReader) (objgraph.Value, error) {
			w, err := r.Get("weight")
			if err != nil {
				return objgraph.Null(), err
			}
			f, _ := w.AsFloat()
			return objgraph.Bool(f > 5000), nil
		},
	}
}

func TestParseModel(t *testing.T) {
	model, err := ParseModel([]byte(dinosaurModel), testCatalog())
	require.NoError(t, err)
	assert.Equal(t, "dinosaurs", model.Name)
	require.Len(t, model.Entities, 2)

	dino := model.Entities[0]
	weight, ok := dino.Attribute("weight")
	require.True(t, ok)
	assert.Equal(t, objgraph.Float(0), weight.Default)
	legs, _ := dino.Attribute("legs")
	assert.Equal(t, objgraph.Integer(2), legs.Default)
	name, _ := dino.Attribute("name")
	assert.True(t, name.Required)
	assert.True(t, name.Default.IsNull())

	torches, ok := dino.Relationship("torches")
	require.True(t, ok)
	assert.Equal(t, objgraph.Unbounded, torches.MaxCount)
	assert.Equal(t, objgraph.DeleteRuleCascade, torches.DeleteRule)
	assert.True(t, torches.Ordered)

	owner, _ := model.Entities[1].Relationship("owner")
	assert.Equal(t, 1, owner.MaxCount)

	display, ok := dino.DerivedAttribute("displayName")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "species"}, display.DependsOn)
}

func TestParseModel_RegisterAndUse(t *testing.T) {
	model, err := ParseModel([]byte(dinosaurModel), testCatalog())
	require.NoError(t, err)

	registry := NewEntityRegistry()
	require.NoError(t, RegisterModels(registry, model))
	s := NewObjectStore(registry, nil, nil)
	id := insertDino(t, s, "Rex", "T-Rex", 7000)

	v, err := s.ComputeDerived(id, "displayName")
	require.NoError(t, err)
	assert.Equal(t, objgraph.Text("Rex the T-Rex"), v)

	v, err = s.ComputeDerived(id, "price")
	require.NoError(t, err)
	assert.Equal(t, objgraph.Text("$7000"), v)

	v, err = s.ComputeDerived(id, "heavy")
	require.NoError(t, err)
	assert.Equal(t, objgraph.Bool(true), v)
}

func TestParseModel_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantType objgraph.SchemaErrorType
	}{
		{name: "not json", doc: `{"entities": [`, wantType: objgraph.SchemaErrorTypeInvalidFormat},
		{name: "no entities", doc: `{"entities": []}`, wantType: objgraph.SchemaErrorTypeInvalidFormat},
		{
			name:     "unknown kind",
			doc:      `{"entities": [{"name": "A", "attributes": [{"name": "x", "kind": "date"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidFormat,
		},
		{
			name:     "unknown property",
			doc:      `{"entities": [{"name": "A", "colour": "green"}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidFormat,
		},
		{
			name:     "relationship without inverse",
			doc:      `{"entities": [{"name": "A", "relationships": [{"name": "r", "destination": "A"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidFormat,
		},
		{
			name:     "default of wrong kind",
			doc:      `{"entities": [{"name": "A", "attributes": [{"name": "x", "kind": "integer", "default": "many"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidDefinition,
		},
		{
			name:     "unknown function",
			doc:      `{"entities": [{"name": "A", "derived": [{"name": "d", "kind": "text", "function": "nope"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidDefinition,
		},
		{
			name:     "concat and function",
			doc:      `{"entities": [{"name": "A", "derived": [{"name": "d", "kind": "text", "concat": ["x"], "function": "isHeavy"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidDefinition,
		},
		{
			name:     "neither concat nor function",
			doc:      `{"entities": [{"name": "A", "derived": [{"name": "d", "kind": "text"}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidDefinition,
		},
		{
			name:     "concat of non-text kind",
			doc:      `{"entities": [{"name": "A", "derived": [{"name": "d", "kind": "integer", "concat": ["1"]}]}]}`,
			wantType: objgraph.SchemaErrorTypeInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModel([]byte(tt.doc), testCatalog())
			require.Error(t, err)
			assert.True(t, objgraph.IsSchemaError(err, tt.wantType), "got %v", err)
		})
	}
}

func TestLoadModelDir(t *testing.T) {
	dir := t.TempDir()
	dinos := `{"entities": [{"name": "Dinosaur", "attributes": [{"name": "name", "kind": "text"}],
		"relationships": [{"name": "torches", "destination": "Torch", "inverse": "owner"}]}]}`
	torches := `{"name": "equipment", "entities": [{"name": "Torch",
		"relationships": [{"name": "owner", "destination": "Dinosaur", "inverse": "torches", "max": 1}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_torch.json"), []byte(torches), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_dinosaur.json"), []byte(dinos), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	models, err := LoadModelDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "a_dinosaur", models[0].Name, "unnamed models take the file name")
	assert.Equal(t, filepath.Join(dir, "a_dinosaur.json"), models[0].Source)
	assert.Equal(t, "equipment", models[1].Name)

	// Relationships may cross files because registration is one batch.
	registry := NewEntityRegistry()
	require.NoError(t, RegisterModels(registry, models...))
	assert.Equal(t, []string{"Dinosaur", "Torch"}, registry.ListEntities())
}

func TestLoadModelDir_Errors(t *testing.T) {
	_, err := LoadModelDir(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"entities": 3}`), 0o644))
	_, err = LoadModelDir(dir, nil)
	require.Error(t, err)
	assert.True(t, objgraph.IsSchemaError(err, objgraph.SchemaErrorTypeInvalidFormat))
	assert.Contains(t, err.Error(), "bad.json")
}
