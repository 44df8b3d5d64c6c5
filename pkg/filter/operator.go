package filter

import (
	"fmt"
	"strings"
)

// Operator is a closed set of supported filter operators
type Operator int

// enum of all supported operators
const (
	Equals Operator = iota + 1
	NotEquals
	Contains
	NotContains
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	In
	IsNull
	IsNotNull
)

// Operators lists all operators in display order
var Operators = []Operator{Equals, NotEquals, Contains, NotContains, LessThan, LessOrEqual,
	GreaterThan, GreaterOrEqual, In, IsNull, IsNotNull}

var opNames = map[Operator]string{
	Equals:         "equals",
	NotEquals:      "not-equals",
	Contains:       "contains",
	NotContains:    "not-contains",
	LessThan:       "less-than",
	LessOrEqual:    "less-or-equal",
	GreaterThan:    "greater-than",
	GreaterOrEqual: "greater-or-equal",
	In:             "in",
	IsNull:         "is-null",
	IsNotNull:      "is-not-null",
}

// opAliases maps alternative spellings, snake_case names and sql symbols
var opAliases = map[string]Operator{
	"does_not_equal":        NotEquals,
	"not_equals":            NotEquals,
	"like":                  Contains,
	"not_like":              NotContains,
	"not-like":              NotContains,
	"less_than":             LessThan,
	"less_than_or_equal":    LessOrEqual,
	"greater_than":          GreaterThan,
	"greater_than_or_equal": GreaterOrEqual,
	"in-set":                In,
	"is_null":               IsNull,
	"is_not_null":           IsNotNull,
	"=":                     Equals,
	"==":                    Equals,
	"!=":                    NotEquals,
	"<>":                    NotEquals,
	"<":                     LessThan,
	"<=":                    LessOrEqual,
	">":                     GreaterThan,
	">=":                    GreaterOrEqual,
}

// ParseOperator returns Operator for canonical name, snake_case alias or sql symbol, case-insensitive
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op, n := range opNames {
		if n == name {
			return op, nil
		}
	}
	if op, ok := opAliases[name]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, s)
}

// String returns canonical operator name
func (o Operator) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("operator(%d)", int(o))
}

// NeedsValue is false for null checks only
func (o Operator) NeedsValue() bool {
	return o != IsNull && o != IsNotNull
}

// Numeric is true for ordering comparisons, values parsed as float
func (o Operator) Numeric() bool {
	switch o {
	case LessThan, LessOrEqual, GreaterThan, GreaterOrEqual:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler
func (o Operator) MarshalText() ([]byte, error) {
	if _, ok := opNames[o]; !ok {
		return nil, fmt.Errorf("%w: unknown operator %d", ErrInvalidFilter, int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Operator) UnmarshalText(text []byte) error {
	op, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

func (o Operator) symbol() string {
	switch o {
	case LessThan:
		return "<"
	case LessOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterOrEqual:
		return ">="
	default:
		return ""
	}
}
