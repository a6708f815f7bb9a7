package objgraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Accessors(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.True(t, Value{}.IsNull())
	assert.Equal(t, ValueKind(""), Null().Kind())

	s, ok := Text("Rex").AsText()
	assert.True(t, ok)
	assert.Equal(t, "Rex", s)

	_, ok = Integer(3).AsFloat()
	assert.False(t, ok)

	assert.Equal(t, "7000", Float(7000).String())
	assert.Equal(t, "2", Integer(2).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "<null>", Null().String())

	assert.True(t, Text("a").Equal(Text("a")))
	assert.False(t, Integer(1).Equal(Float(1)))
}

func TestValue_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int less", Integer(1), Integer(2), -1},
		{"float greater", Float(3.5), Float(1), 1},
		{"int vs float equal", Integer(2), Float(2), 0},
		{"text", Text("Rex"), Text("Trixie"), -1},
		{"bool", Bool(false), Bool(true), -1},
		{"null first", Null(), Integer(0), -1},
		{"null last arg", Text(""), Null(), 1},
		{"both null", Null(), Null(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Compare(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Text("1").Compare(Integer(1))
	assert.Error(t, err)
	_, err = Bool(true).Compare(Text("true"))
	assert.Error(t, err)
}

func TestValueOfKind(t *testing.T) {
	v, err := ValueOfKind(KindInteger, 7.0)
	require.NoError(t, err)
	assert.Equal(t, Integer(7), v)

	v, err = ValueOfKind(KindFloat, 7)
	require.NoError(t, err)
	assert.Equal(t, Float(7), v)

	v, err = ValueOfKind(KindText, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = ValueOfKind(KindInteger, 7.5)
	assert.Error(t, err)
	_, err = ValueOfKind(KindBoolean, "yes")
	assert.Error(t, err)
	_, err = ValueOf(struct{}{})
	assert.Error(t, err)

	v, err = ValueOf(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, Integer(42), v)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindFloat, "3200.5")
	require.NoError(t, err)
	assert.Equal(t, Float(3200.5), v)

	v, err = ParseValue(KindBoolean, "false")
	require.NoError(t, err)
	assert.Equal(t, Bool(false), v)

	_, err = ParseValue(KindInteger, "2.5")
	assert.Error(t, err)
	_, err = ParseValue(ValueKind("date"), "2024-01-01")
	assert.Error(t, err)
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"name": Text("Rex"), "weight": Float(7000), "nick": Null()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Rex","weight":7000,"nick":null}`, string(data))
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var decoded map[string]Value
	require.NoError(t, json.Unmarshal(
		[]byte(`{"name":"Rex","legs":2,"weight":7000.5,"big":1e3,"hungry":true,"nick":null}`), &decoded))
	assert.Equal(t, map[string]Value{
		"name":   Text("Rex"),
		"legs":   Integer(2),
		"weight": Float(7000.5),
		"big":    Float(1000),
		"hungry": Bool(true),
		"nick":   Null(),
	}, decoded)

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"nested":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &v))
}
