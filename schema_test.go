package objgraph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapReader map[string]Value

func (m mapReader) Get(name string) (Value, error) {
	v, ok := m[name]
	if !ok {
		return Null(), errors.New("undeclared " + name)
	}
	return v, nil
}

func TestLinkInverse(t *testing.T) {
	dino := &EntityType{Name: "Dinosaur"}
	torch := &EntityType{Name: "Torch"}

	LinkInverse(
		dino, RelationshipDef{Name: "torches", MaxCount: Unbounded, DeleteRule: DeleteRuleCascade},
		torch, RelationshipDef{Name: "owner", MaxCount: 1, DeleteRule: DeleteRuleNullify},
	)

	fwd, ok := dino.Relationship("torches")
	require.True(t, ok)
	assert.Equal(t, "Torch", fwd.Destination)
	assert.Equal(t, "owner", fwd.Inverse)
	assert.True(t, fwd.IsToMany())

	inv, ok := torch.Relationship("owner")
	require.True(t, ok)
	assert.Equal(t, "Dinosaur", inv.Destination)
	assert.Equal(t, "torches", inv.Inverse)
	assert.False(t, inv.IsToMany())
	assert.True(t, inv.Allows(1))
	assert.False(t, inv.Allows(2))
	assert.True(t, fwd.Allows(1000))
}

func TestConcatAttribute(t *testing.T) {
	def := ConcatAttribute("displayName", AttrRef("name"), Literal(" the "), AttrRef("species"), Literal(" / "), AttrRef("name"))
	assert.Equal(t, []string{"name", "species"}, def.DependsOn)
	assert.Equal(t, KindText, def.Kind)

	v, err := def.Derive(mapReader{"name": Text("Rex"), "species": Text("T-Rex")})
	require.NoError(t, err)
	assert.Equal(t, Text("Rex the T-Rex / Rex"), v)

	v, err = def.Derive(mapReader{"name": Text("Rex"), "species": Null()})
	require.NoError(t, err)
	assert.Equal(t, Text("Rex the  / Rex"), v)

	_, err = def.Derive(mapReader{"name": Text("Rex")})
	assert.Error(t, err)
}

func TestEntityType_CloneIsDeep(t *testing.T) {
	e := &EntityType{
		Name:       "Dinosaur",
		Attributes: []AttributeDef{{Name: "name", Kind: KindText, Required: true}},
		Derived:    []DerivedAttributeDef{ConcatAttribute("label", AttrRef("name"))},
	}
	c := e.Clone()
	c.Attributes[0].Name = "changed"
	c.Derived[0].DependsOn[0] = "changed"

	assert.Equal(t, "name", e.Attributes[0].Name)
	assert.Equal(t, "name", e.Derived[0].DependsOn[0])

	kind, ok := e.AttributeKind("label")
	assert.True(t, ok)
	assert.Equal(t, KindText, kind)
	_, ok = e.AttributeKind("missing")
	assert.False(t, ok)
}

func TestEntityType_JSONRoundTrip(t *testing.T) {
	dino := &EntityType{
		Name: "Dinosaur",
		Attributes: []AttributeDef{
			{Name: "name", Kind: KindText, Required: true},
			{Name: "weight", Kind: KindFloat, Default: Float(7000)},
			{Name: "legs", Kind: KindInteger, Default: Integer(2)},
			{Name: "likesCactus", Kind: KindBoolean, Default: Bool(false)},
		},
	}
	torch := &EntityType{Name: "Torch"}
	LinkInverse(
		dino, RelationshipDef{Name: "torches", MaxCount: 2, Ordered: true, DeleteRule: DeleteRuleCascade},
		torch, RelationshipDef{Name: "owner", MaxCount: 1, DeleteRule: DeleteRuleNullify},
	)

	data, err := json.Marshal(dino)
	require.NoError(t, err)
	var decoded EntityType
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, dino, &decoded)

	weight, ok := decoded.Attribute("weight")
	require.True(t, ok)
	assert.Equal(t, KindFloat, weight.Default.Kind(), "integral float defaults keep their kind")

	var bad AttributeDef
	err = json.Unmarshal([]byte(`{"name":"legs","kind":"integer","default":"many"}`), &bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legs")
}
