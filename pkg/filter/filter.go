// Package filter compiles user-defined filter conditions into a parameterized SQL WHERE clause.
// Only identifiers are interpolated into the clause text, every value is passed as a bound parameter.
// Compilation is pure, it never touches the database and relies on the caller-provided column list
// to validate field names.
package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFilter returned for unknown operators or fields, non-numeric comparison values and empty sets.
var ErrInvalidFilter = errors.New("invalid filter")

// Spec defines a single filter condition, field, operator and value, prior to compilation.
// Value ignored by IsNull and IsNotNull operators.
type Spec struct {
	Field string   `json:"field"`
	Op    Operator `json:"operator"`
	Value string   `json:"value,omitempty"`
}

// Clause is a compiled WHERE fragment with ordered bound parameters.
// Number of placeholders in Text always equals len(Params).
type Clause struct {
	Text   string
	Params []any
}

// Empty returns true if the clause has no conditions and WHERE should not be appended.
func (c Clause) Empty() bool {
	return c.Text == ""
}

// ParseSpec parses "field:operator:value" into Spec. Value part is optional and may contain colons.
func ParseSpec(s string) (Spec, error) {
	elems := strings.SplitN(s, ":", 3)
	if len(elems) < 2 {
		return Spec{}, fmt.Errorf("%w: %q, expected field:operator[:value]", ErrInvalidFilter, s)
	}
	op, err := ParseOperator(elems[1])
	if err != nil {
		return Spec{}, err
	}
	res := Spec{Field: strings.TrimSpace(elems[0]), Op: op}
	if len(elems) == 3 {
		res.Value = elems[2]
	}
	return res, nil
}

// Compile translates specs to a clause joined with AND in the input order.
// Every spec's field must be present in columns. Empty specs compile to an empty clause.
func Compile(columns []string, specs []Spec) (Clause, error) {
	if len(specs) == 0 {
		return Clause{}, nil
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	conds := make([]string, 0, len(specs))
	params := []any{}
	for i, s := range specs {
		if s.Field == "" {
			return Clause{}, fmt.Errorf("%w: filter #%d has no field", ErrInvalidFilter, i+1)
		}
		if _, ok := known[s.Field]; !ok {
			return Clause{}, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, s.Field)
		}
		cond, args, err := condition(s)
		if err != nil {
			return Clause{}, fmt.Errorf("filter #%d on %q: %w", i+1, s.Field, err)
		}
		conds = append(conds, cond)
		params = append(params, args...)
	}
	return Clause{Text: strings.Join(conds, " AND "), Params: params}, nil
}

// condition makes a single condition and its parameters. The switch is exhaustive over Operator.
func condition(s Spec) (string, []any, error) {
	field := QuoteIdent(s.Field)
	switch s.Op {
	case Equals:
		return field + " = ?", []any{s.Value}, nil
	case NotEquals:
		return field + " != ?", []any{s.Value}, nil
	case Contains:
		return field + " LIKE ?", []any{"%" + s.Value + "%"}, nil
	case NotContains:
		return field + " NOT LIKE ?", []any{"%" + s.Value + "%"}, nil
	case LessThan, LessOrEqual, GreaterThan, GreaterOrEqual:
		v, err := parseNumber(s.Value)
		if err != nil {
			return "", nil, err
		}
		return field + " " + s.Op.symbol() + " ?", []any{v}, nil
	case In:
		items := splitSet(s.Value)
		if len(items) == 0 {
			return "", nil, fmt.Errorf("%w: empty set for %s", ErrInvalidFilter, s.Op)
		}
		args := make([]any, len(items))
		for i, item := range items {
			args[i] = item
		}
		return field + " IN (" + placeholders(len(items)) + ")", args, nil
	case IsNull:
		return field + " IS NULL", nil, nil
	case IsNotNull:
		return field + " IS NOT NULL", nil, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %d", ErrInvalidFilter, int(s.Op))
	}
}

func parseNumber(v string) (float64, error) {
	res, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(res) || math.IsInf(res, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidFilter, v)
	}
	return res, nil
}

// splitSet splits comma-separated set, trims items and drops empty ones
func splitSet(v string) []string {
	var res []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// QuoteIdent wraps name in double quotes, embedded quotes doubled.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Inline renders the clause with parameters substituted, strings single-quoted.
// For display only, the result must never be executed.
func (c Clause) Inline() string {
	if len(c.Params) == 0 {
		return c.Text
	}
	var sb strings.Builder
	next, inIdent := 0, false
	for _, r := range c.Text {
		switch {
		case r == '"':
			inIdent = !inIdent // doubled quote flips twice and stays inside
			sb.WriteRune(r)
		case r == '?' && !inIdent && next < len(c.Params):
			sb.WriteString(Literal(c.Params[next]))
			next++
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Literal formats a parameter value as SQL literal for display
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
