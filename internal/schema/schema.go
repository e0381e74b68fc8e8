// Package schema models the expected column layout of a source file: an
// ordered list of (name, primitive type) pairs plus the comparison rules the
// Validator applies.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Type is a primitive cell type.
type Type string

const (
	Integer Type = "integer"
	Double  Type = "double"
	String  Type = "string"
	Boolean Type = "boolean"
	Date    Type = "date"
)

// ParseType maps loosely written type names (as found in configs and
// contracts) onto a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int4", "int8", "bigint", "long":
		return Integer, nil
	case "double", "float", "float64", "real", "numeric", "decimal":
		return Double, nil
	case "string", "text", "varchar":
		return String, nil
	case "boolean", "bool":
		return Boolean, nil
	case "date", "timestamp":
		return Date, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

// Numeric reports whether values of t are numbers.
func (t Type) Numeric() bool { return t == Integer || t == Double }

// Column is a single (name, type) pair.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

func (c Column) String() string { return c.Name + ":" + string(c.Type) }

// Schema is an ordered set of columns with unique names.
type Schema struct {
	Columns []Column
}

// New builds a Schema and rejects empty or duplicate names.
func New(cols ...Column) (Schema, error) {
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return Schema{}, fmt.Errorf("column %d: empty name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return Schema{Columns: out}, nil
}

// MustNew is New for static schemas; it panics on invalid input.
func MustNew(cols ...Column) Schema {
	s, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Names returns column names in declared order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the type of the named column.
func (s Schema) Lookup(name string) (Type, bool) {
	if i := s.Index(name); i >= 0 {
		return s.Columns[i].Type, true
	}
	return "", false
}

// Normalized returns the columns sorted by (name, type). Two schemas are
// equal for validation purposes when their normalized forms are identical.
func (s Schema) Normalized() []Column {
	out := make([]Column, len(s.Columns))
	copy(out, s.Columns)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Equal compares two schemas ignoring column order.
func (s Schema) Equal(o Schema) bool {
	a, b := s.Normalized(), o.Normalized()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Diff describes how an observed schema deviates from an expected one.
type Diff struct {
	Missing  []Column // expected but absent
	Extra    []Column // observed but not expected
	Mistyped []TypeMismatch
}

// TypeMismatch is a column present on both sides with different types.
type TypeMismatch struct {
	Name     string
	Expected Type
	Observed Type
}

// Empty reports whether the two schemas matched.
func (d Diff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 && len(d.Mistyped) == 0
}

func (d Diff) String() string {
	var parts []string
	for _, c := range d.Missing {
		parts = append(parts, "missing "+c.String())
	}
	for _, c := range d.Extra {
		parts = append(parts, "extra "+c.String())
	}
	for _, m := range d.Mistyped {
		parts = append(parts, fmt.Sprintf("mistyped %s: expected %s, got %s", m.Name, m.Expected, m.Observed))
	}
	return strings.Join(parts, "; ")
}

// Compare reports the differences between expected and observed.
func Compare(expected, observed Schema) Diff {
	var d Diff
	for _, c := range expected.Normalized() {
		t, ok := observed.Lookup(c.Name)
		switch {
		case !ok:
			d.Missing = append(d.Missing, c)
		case t != c.Type:
			d.Mistyped = append(d.Mistyped, TypeMismatch{Name: c.Name, Expected: c.Type, Observed: t})
		}
	}
	for _, c := range observed.Normalized() {
		if _, ok := expected.Lookup(c.Name); !ok {
			d.Extra = append(d.Extra, c)
		}
	}
	return d
}

// Rename returns a copy of s with column from renamed to to. It fails when
// to already exists. Absence of from is not an error; ok reports whether a
// rename happened.
func (s Schema) Rename(from, to string) (out Schema, ok bool, err error) {
	i := s.Index(from)
	if i < 0 || from == to {
		return s, false, nil
	}
	if s.Index(to) >= 0 {
		return s, false, fmt.Errorf("rename %q -> %q: target column exists", from, to)
	}
	cols := make([]Column, len(s.Columns))
	copy(cols, s.Columns)
	cols[i].Name = to
	return Schema{Columns: cols}, true, nil
}
