package objgraph

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string]Value

var staticKinds = map[string]ValueKind{
	"name":     KindText,
	"weight":   KindFloat,
	"torches":  KindInteger,
	"hungry":   KindBoolean,
	"nickname": KindText,
}

func (s staticSource) Attribute(name string) (Value, ValueKind, error) {
	kind, ok := staticKinds[name]
	if !ok {
		return Null(), "", fmt.Errorf("unknown attribute %s", name)
	}
	return s[name], kind, nil
}

func rex() staticSource {
	return staticSource{
		"name":    Text("Rex"),
		"weight":  Float(7000),
		"torches": Integer(2),
		"hungry":  Bool(true),
	}
}

func TestComparison_Evaluate(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals text", Compare("name", FilterEquals, Text("Rex")), true},
		{"not equals text", Compare("name", FilterNotEquals, Text("Rex")), false},
		{"float gt integer operand", Compare("weight", FilterGreaterThan, Integer(5000)), true},
		{"float lte", Compare("weight", FilterLessEq, Float(7000)), true},
		{"integer lt", Compare("torches", FilterLessThan, Integer(2)), false},
		{"integer gte float operand", Compare("torches", FilterGreaterEq, Float(1.5)), true},
		{"starts with", Compare("name", FilterStartsWith, Text("Re")), true},
		{"contains", Compare("name", FilterContains, Text("ex")), true},
		{"in", Compare("torches", FilterIn, Integer(1), Integer(2)), true},
		{"not in", Compare("torches", FilterNotIn, Integer(1), Integer(2)), false},
		{"boolean equals", Compare("hungry", FilterEquals, Bool(true)), true},
		{"null equals null", Compare("nickname", FilterEquals, Null()), true},
		{"null not equals value", Compare("nickname", FilterNotEquals, Text("T")), true},
		{"null gt never matches", Compare("nickname", FilterGreaterThan, Text("A")), false},
		{"null contains never matches", Compare("nickname", FilterContains, Text("A")), false},
		{"and", And(Compare("name", FilterEquals, Text("Rex")), Compare("weight", FilterGreaterThan, Float(1))), true},
		{"or", Or(Compare("name", FilterEquals, Text("Trixie")), Compare("hungry", FilterEquals, Bool(true))), true},
		{"empty and matches", And(), true},
		{"empty or matches", Or(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(rex())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComparison_EvaluateErrors(t *testing.T) {
	tests := []struct {
		name      string
		cond      Condition
		errSubstr string
	}{
		{"text against number", Compare("name", FilterGreaterThan, Integer(1)), "cannot compare"},
		{"contains on number", Compare("weight", FilterContains, Text("7")), "requires a text attribute"},
		{"unknown operator", Compare("name", FilterType("like"), Text("R")), "unsupported operator"},
		{"missing operand", Compare("name", FilterEquals), "exactly one operand"},
		{"unknown attribute", Compare("color", FilterEquals, Text("green")), "unknown attribute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cond.Evaluate(rex())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestKvCondition_Evaluate(t *testing.T) {
	tests := []struct {
		value string
		attr  string
		want  bool
	}{
		{"Rex", "name", true},
		{"equals:Rex", "name", true},
		{"not_equals:Rex", "name", false},
		{"gt:6999.5", "weight", true},
		{"lt:7000", "weight", false},
		{"in:1,2,3", "torches", true},
		{"not_in:1, 3", "torches", true},
		{"starts_with:R", "name", true},
		{"true", "hungry", true},
		{"weird:prefix", "name", false},
	}

	for _, tt := range tests {
		t.Run(tt.attr+"="+tt.value, func(t *testing.T) {
			kv := &KvCondition{Attr: tt.attr, Value: tt.value}
			got, err := kv.Evaluate(rex())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKvCondition_ParseErrors(t *testing.T) {
	_, err := (&KvCondition{Attr: "weight", Value: "gt:heavy"}).Evaluate(rex())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid float value")

	_, err = (&KvCondition{Attr: "weight", Value: "gt:"}).Evaluate(rex())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid KvCondition value format")
}

func TestDecodedConditionTree_Evaluate(t *testing.T) {
	payload := `{"l":"and","c":[{"a":"weight","v":"gt:1000"},{"l":"or","c":[{"a":"name","v":"Trixie"},{"a":"torches","v":"gte:2"}]}]}`

	var root CompositeCondition
	require.NoError(t, json.Unmarshal([]byte(payload), &root))

	ok, err := root.Evaluate(rex())
	require.NoError(t, err)
	assert.True(t, ok)

	light := rex()
	light["weight"] = Float(900)
	ok, err = root.Evaluate(light)
	require.NoError(t, err)
	assert.False(t, ok)
}
