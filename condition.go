package objgraph

import (
	"fmt"
	"strings"
)

// Evaluate reports whether src satisfies the composite. An empty composite matches.
func (c *CompositeCondition) Evaluate(src AttributeSource) (bool, error) {
	if len(c.Conditions) == 0 {
		return true, nil
	}

	switch c.Logic {
	case LogicAnd:
		for _, cond := range c.Conditions {
			ok, err := cond.Evaluate(src)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicOr:
		for _, cond := range c.Conditions {
			ok, err := cond.Evaluate(src)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown logic: %s", c.Logic)
	}
}

func (c *CompositeCondition) ReferencedAttributes() []string {
	var attrs []string
	for _, cond := range c.Conditions {
		attrs = append(attrs, cond.ReferencedAttributes()...)
	}
	return attrs
}

func (kv *KvCondition) ReferencedAttributes() []string {
	return []string{kv.Attr}
}

// parseValueAndOp splits "op:value". A prefix that is not a known operator is
// treated as part of an equals operand.
func (kv *KvCondition) parseValueAndOp() (FilterType, string, error) {
	parts := strings.SplitN(kv.Value, ":", 2)
	if len(parts) == 1 {
		return FilterEquals, kv.Value, nil
	}

	op := FilterType(parts[0])
	if !op.Valid() {
		return FilterEquals, kv.Value, nil
	}
	if parts[1] == "" {
		return "", "", fmt.Errorf("invalid KvCondition value format: %s", kv.Value)
	}
	return op, parts[1], nil
}

// Comparison converts the shorthand leaf into a typed comparison using the
// attribute's declared kind to parse operands.
func (kv *KvCondition) Comparison(kind ValueKind) (*Comparison, error) {
	op, raw, err := kv.parseValueAndOp()
	if err != nil {
		return nil, err
	}

	var operands []string
	if op == FilterIn || op == FilterNotIn {
		operands = strings.Split(raw, ",")
	} else {
		operands = []string{raw}
	}

	values := make([]Value, 0, len(operands))
	for _, s := range operands {
		if op.IsTextMatch() || kind == KindText {
			values = append(values, Text(s))
			continue
		}
		v, err := ParseValue(kind, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("attribute '%s': %w", kv.Attr, err)
		}
		values = append(values, v)
	}
	return &Comparison{Attr: kv.Attr, Op: op, Values: values}, nil
}

func (kv *KvCondition) Evaluate(src AttributeSource) (bool, error) {
	_, kind, err := src.Attribute(kv.Attr)
	if err != nil {
		return false, err
	}
	cmp, err := kv.Comparison(kind)
	if err != nil {
		return false, err
	}
	return cmp.Evaluate(src)
}

func (c *Comparison) ReferencedAttributes() []string {
	return []string{c.Attr}
}

// Validate checks the operator and operand count.
func (c *Comparison) Validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("unsupported operator: %s", c.Op)
	}
	if c.Op == FilterIn || c.Op == FilterNotIn {
		return nil
	}
	if len(c.Values) != 1 {
		return fmt.Errorf("operator %s takes exactly one operand, got %d", c.Op, len(c.Values))
	}
	return nil
}

// Evaluate compares the attribute against the operands. A null attribute
// only satisfies equals null, not_equals of a non-null operand and not_in.
func (c *Comparison) Evaluate(src AttributeSource) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	actual, _, err := src.Attribute(c.Attr)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case FilterEquals, FilterNotEquals:
		eq, err := valuesEqual(actual, c.Values[0])
		if err != nil {
			return false, fmt.Errorf("attribute '%s': %w", c.Attr, err)
		}
		return eq == (c.Op == FilterEquals), nil
	case FilterIn, FilterNotIn:
		found := false
		for _, operand := range c.Values {
			eq, err := valuesEqual(actual, operand)
			if err != nil {
				return false, fmt.Errorf("attribute '%s': %w", c.Attr, err)
			}
			if eq {
				found = true
				break
			}
		}
		return found == (c.Op == FilterIn), nil
	case FilterStartsWith, FilterContains:
		if actual.IsNull() {
			return false, nil
		}
		s, ok := actual.AsText()
		if !ok {
			return false, fmt.Errorf("attribute '%s': %s requires a text attribute", c.Attr, c.Op)
		}
		needle, ok := c.Values[0].AsText()
		if !ok {
			return false, fmt.Errorf("attribute '%s': %s requires a text operand", c.Attr, c.Op)
		}
		if c.Op == FilterStartsWith {
			return strings.HasPrefix(s, needle), nil
		}
		return strings.Contains(s, needle), nil
	default:
		if actual.IsNull() || c.Values[0].IsNull() {
			return false, nil
		}
		cmp, err := actual.Compare(c.Values[0])
		if err != nil {
			return false, fmt.Errorf("attribute '%s': %w", c.Attr, err)
		}
		switch c.Op {
		case FilterGreaterThan:
			return cmp > 0, nil
		case FilterGreaterEq:
			return cmp >= 0, nil
		case FilterLessThan:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}
}

func valuesEqual(a, b Value) (bool, error) {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull(), nil
	}
	cmp, err := a.Compare(b)
	if err != nil {
		return false, err
	}
	return cmp == 0, nil
}

// Valid reports whether f is a supported operator.
func (f FilterType) Valid() bool {
	switch f {
	case FilterEquals, FilterNotEquals, FilterStartsWith, FilterContains,
		FilterGreaterThan, FilterLessThan, FilterGreaterEq, FilterLessEq,
		FilterIn, FilterNotIn:
		return true
	default:
		return false
	}
}

// IsTextMatch reports whether f only applies to text attributes.
func (f FilterType) IsTextMatch() bool {
	return f == FilterStartsWith || f == FilterContains
}
