// Package filter removes rows that fail a conjunction of predicates.
//
// Comparisons follow SQL semantics: a NULL cell makes every comparison
// unknown, and the row is dropped. Surviving rows keep their order.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/schema"
)

// Op is a comparison operator.
type Op string

const (
	Eq      Op = "eq"
	Ne      Op = "ne"
	Gt      Op = "gt"
	Ge      Op = "ge"
	Lt      Op = "lt"
	Le      Op = "le"
	In      Op = "in"
	NotIn   Op = "not_in"
	NotNull Op = "not_null"
)

// ParseOp accepts the operator names plus their symbolic forms.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq", "=", "==":
		return Eq, nil
	case "ne", "!=", "<>":
		return Ne, nil
	case "gt", ">":
		return Gt, nil
	case "ge", ">=":
		return Ge, nil
	case "lt", "<":
		return Lt, nil
	case "le", "<=":
		return Le, nil
	case "in":
		return In, nil
	case "not_in", "notin":
		return NotIn, nil
	case "not_null", "notnull", "required":
		return NotNull, nil
	}
	return "", fmt.Errorf("unknown filter op %q", s)
}

// Predicate is a row test. Bind resolves it against a schema and fails when a
// referenced column is absent or the literal cannot be compared with it.
type Predicate interface {
	Bind(s schema.Schema) (func(dataset.Row) bool, error)
	String() string
}

// Conjunction keeps rows that satisfy every predicate.
type Conjunction []Predicate

// Filter drops failing rows from ds in place and returns it. Binding errors
// are reported as FilterError before any row is removed.
func (c Conjunction) Filter(ds *dataset.Dataset) (*dataset.Dataset, error) {
	tests := make([]func(dataset.Row) bool, 0, len(c))
	for _, p := range c {
		fn, err := p.Bind(ds.Schema())
		if err != nil {
			return nil, etlerr.New(etlerr.FilterError, ds.Key, fmt.Errorf("%s: %w", p, err))
		}
		tests = append(tests, fn)
	}
	err := ds.Retain(func(r dataset.Row) (bool, error) {
		for _, keep := range tests {
			if !keep(r) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, etlerr.New(etlerr.FilterError, ds.Key, err)
	}
	return ds, nil
}

// Default is the production loan filter: drop charged-off loans, drop the
// "other" purpose, and keep borrowers with last_fico_range_low of at least 700.
func Default() Conjunction {
	return Conjunction{
		MustCompare("loan_status", Ne, "Charged Off"),
		MustCompare("purpose", Ne, "other"),
		MustCompare("last_fico_range_low", Ge, 700),
	}
}

// Func adapts an arbitrary row test. Its columns are not checked up front.
func Func(name string, keep func(dataset.Row) bool) Predicate {
	return funcPredicate{name: name, keep: keep}
}

type funcPredicate struct {
	name string
	keep func(dataset.Row) bool
}

func (f funcPredicate) Bind(schema.Schema) (func(dataset.Row) bool, error) { return f.keep, nil }
func (f funcPredicate) String() string                                       { return f.name }

// Compare tests one column against a literal.
type Compare struct {
	Field string
	Op    Op
	Value any
	// Cells reads string literals for boolean and date columns.
	Cells dataset.ParseOptions
}

// NewCompare validates op (symbolic forms are normalized) and the literal's
// shape.
func NewCompare(field string, op Op, value any) (Compare, error) {
	if field == "" {
		return Compare{}, fmt.Errorf("filter: empty field")
	}
	op, err := ParseOp(string(op))
	if err != nil {
		return Compare{}, err
	}
	if op == In || op == NotIn {
		if _, ok := asList(value); !ok {
			return Compare{}, fmt.Errorf("filter %s %s: value must be a list, got %T", field, op, value)
		}
	} else if op != NotNull && value == nil {
		return Compare{}, fmt.Errorf("filter %s %s: missing value", field, op)
	}
	return Compare{Field: field, Op: op, Value: value}, nil
}

// MustCompare is NewCompare for static predicates.
func MustCompare(field string, op Op, value any) Compare {
	c, err := NewCompare(field, op, value)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Compare) String() string {
	if c.Op == NotNull {
		return fmt.Sprintf("%s %s", c.Field, c.Op)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

func (c Compare) Bind(s schema.Schema) (func(dataset.Row) bool, error) {
	typ, ok := s.Lookup(c.Field)
	if !ok {
		return nil, fmt.Errorf("column %q not in dataset", c.Field)
	}
	field := c.Field
	if c.Op == NotNull {
		return func(r dataset.Row) bool {
			cell, _ := r.Get(field)
			return !cell.Null
		}, nil
	}

	var lits []dataset.Cell
	if c.Op == In || c.Op == NotIn {
		vals, _ := asList(c.Value)
		for _, v := range vals {
			lit, err := literal(v, typ, c.Cells)
			if err != nil {
				return nil, err
			}
			lits = append(lits, lit)
		}
	} else {
		lit, err := literal(c.Value, typ, c.Cells)
		if err != nil {
			return nil, err
		}
		if typ == schema.Boolean && c.Op != Eq && c.Op != Ne {
			return nil, fmt.Errorf("operator %s is not defined for boolean column %q", c.Op, field)
		}
		lits = []dataset.Cell{lit}
	}

	op := c.Op
	return func(r dataset.Row) bool {
		cell, _ := r.Get(field)
		if cell.Null {
			return false
		}
		switch op {
		case In, NotIn:
			found := false
			for _, l := range lits {
				if compare(cell, l) == 0 {
					found = true
					break
				}
			}
			return found == (op == In)
		}
		d := compare(cell, lits[0])
		switch op {
		case Eq:
			return d == 0
		case Ne:
			return d != 0
		case Gt:
			return d > 0
		case Ge:
			return d >= 0
		case Lt:
			return d < 0
		case Le:
			return d <= 0
		}
		return false
	}, nil
}

// compare orders two non-NULL cells of the same type family.
func compare(a, b dataset.Cell) int {
	if an, ok := a.Number(); ok {
		bn, _ := b.Number()
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	switch a.Type {
	case schema.String:
		as, _ := a.Text()
		bs, _ := b.Text()
		return strings.Compare(as, bs)
	case schema.Boolean:
		ab, _ := a.Boolean()
		bb, _ := b.Boolean()
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case schema.Date:
		at, _ := a.Time()
		bt, _ := b.Time()
		return at.Compare(bt)
	}
	return 0
}

// literal converts a configuration value into a non-NULL cell comparable
// with columns of type t.
func literal(v any, t schema.Type, opt dataset.ParseOptions) (dataset.Cell, error) {
	c, err := literalCell(v, t, opt)
	if err == nil && c.Null {
		err = fmt.Errorf("empty value cannot be compared with a %s column", t)
	}
	return c, err
}

func literalCell(v any, t schema.Type, opt dataset.ParseOptions) (dataset.Cell, error) {
	switch t {
	case schema.Integer, schema.Double:
		switch x := v.(type) {
		case int:
			return dataset.Double(float64(x)), nil
		case int64:
			return dataset.Double(float64(x)), nil
		case float64:
			return dataset.Double(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return dataset.Cell{}, fmt.Errorf("value %q is not numeric", x)
			}
			return dataset.Double(f), nil
		}
	case schema.String:
		switch x := v.(type) {
		case string:
			return dataset.Str(x), nil
		case fmt.Stringer:
			return dataset.Str(x.String()), nil
		case int, int64, float64, bool:
			return dataset.Str(fmt.Sprint(x)), nil
		}
	case schema.Boolean:
		switch x := v.(type) {
		case bool:
			return dataset.Bool(x), nil
		case string:
			return dataset.Parse(x, schema.Boolean, opt)
		}
	case schema.Date:
		switch x := v.(type) {
		case time.Time:
			return dataset.Date(x), nil
		case string:
			return dataset.Parse(x, schema.Date, opt)
		}
	}
	return dataset.Cell{}, fmt.Errorf("value %v (%T) cannot be compared with a %s column", v, v, t)
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
