package objgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind is the storage kind of an attribute.
type ValueKind string

const (
	KindText    ValueKind = "text"
	KindFloat   ValueKind = "float"
	KindInteger ValueKind = "integer"
	KindBoolean ValueKind = "boolean"
)

// Valid reports whether k is one of the four supported kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case KindText, KindFloat, KindInteger, KindBoolean:
		return true
	default:
		return false
	}
}

// Value is a tagged attribute value. The zero Value is null.
type Value struct {
	kind    ValueKind
	text    string
	number  float64
	integer int64
	boolean bool
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, number: f} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, integer: i} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Null returns the null value.
func Null() Value { return Value{} }

// Kind returns the kind of v, or "" when v is null.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool { return v.kind == "" }

func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

func (v Value) AsFloat() (float64, bool) { return v.number, v.kind == KindFloat }

func (v Value) AsInteger() (int64, bool) { return v.integer, v.kind == KindInteger }

func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBoolean }

func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.number, true
	case KindInteger:
		return float64(v.integer), true
	default:
		return 0, false
	}
}

// Native returns the Go representation of v: string, float64, int64, bool or nil.
func (v Value) Native() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindFloat:
		return v.number
	case KindInteger:
		return v.integer
	case KindBoolean:
		return v.boolean
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindFloat:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	default:
		return "<null>"
	}
}

// Equal reports whether v and o have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// Compare orders v against o. Integer and float values compare numerically;
// any other cross-kind comparison is an error. Null sorts before everything.
func (v Value) Compare(o Value) (int, error) {
	switch {
	case v.IsNull() && o.IsNull():
		return 0, nil
	case v.IsNull():
		return -1, nil
	case o.IsNull():
		return 1, nil
	}

	if a, ok := v.numeric(); ok {
		b, ok := o.numeric()
		if !ok {
			return 0, fmt.Errorf("cannot compare %s with %s", v.kind, o.kind)
		}
		if v.kind == KindInteger && o.kind == KindInteger {
			return cmpOrdered(v.integer, o.integer), nil
		}
		return cmpOrdered(a, b), nil
	}

	if v.kind != o.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, o.kind)
	}

	switch v.kind {
	case KindText:
		return strings.Compare(v.text, o.text), nil
	case KindBoolean:
		switch {
		case v.boolean == o.boolean:
			return 0, nil
		case !v.boolean:
			return -1, nil
		default:
			return 1, nil
		}
	}
	return 0, fmt.Errorf("unsupported kind: %s", v.kind)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalJSON encodes v as its native JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON decodes a JSON scalar. Numbers without a fraction or
// exponent become integers; AttributeDef restores the declared kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	decoded, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// ValueOf converts a native Go value into a Value, inferring the kind.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint8:
		return Integer(int64(x)), nil
	case uint16:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Float(f), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", raw)
	}
}

// ValueOfKind converts raw into a Value of the requested kind. Integral
// floats (as produced by encoding/json) convert to integers and integers
// widen to floats; everything else must already match.
func ValueOfKind(kind ValueKind, raw any) (Value, error) {
	v, err := ValueOf(raw)
	if err != nil {
		return Null(), err
	}
	if v.IsNull() || v.kind == kind {
		return v, nil
	}
	switch {
	case kind == KindFloat && v.kind == KindInteger:
		return Float(float64(v.integer)), nil
	case kind == KindInteger && v.kind == KindFloat:
		if v.number == math.Trunc(v.number) && !math.IsInf(v.number, 0) {
			return Integer(int64(v.number)), nil
		}
	}
	return Null(), fmt.Errorf("value %v is %s, expected %s", raw, v.kind, kind)
}

// ParseValue parses the textual form of a value of the given kind.
func ParseValue(kind ValueKind, s string) (Value, error) {
	switch kind {
	case KindText:
		return Text(s), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid float value: %s", s)
		}
		return Float(f), nil
	case KindInteger:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid integer value: %s", s)
		}
		return Integer(i), nil
	case KindBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Null(), fmt.Errorf("invalid boolean value: %s", s)
		}
		return Bool(b), nil
	default:
		return Null(), fmt.Errorf("unsupported value kind: %s", kind)
	}
}
