package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"bucketetl/internal/schema"
)

// Cell is a typed value. Exactly one payload field is meaningful, selected by
// Type; Null marks a missing value of that type.
type Cell struct {
	Type schema.Type
	Null bool

	i int64
	f float64
	s string
	b bool
	t time.Time
}

// Int returns an integer cell.
func Int(v int64) Cell { return Cell{Type: schema.Integer, i: v} }

// Double returns a double cell.
func Double(v float64) Cell { return Cell{Type: schema.Double, f: v} }

// Str returns a string cell.
func Str(v string) Cell { return Cell{Type: schema.String, s: v} }

// Bool returns a boolean cell.
func Bool(v bool) Cell { return Cell{Type: schema.Boolean, b: v} }

// Date returns a date cell truncated to the day in UTC.
func Date(v time.Time) Cell {
	y, m, d := v.Date()
	return Cell{Type: schema.Date, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Null returns a NULL cell of type t.
func Null(t schema.Type) Cell { return Cell{Type: t, Null: true} }

// Int64 returns the integer payload.
func (c Cell) Int64() (int64, bool) { return c.i, c.Type == schema.Integer && !c.Null }

// Float64 returns the double payload.
func (c Cell) Float64() (float64, bool) { return c.f, c.Type == schema.Double && !c.Null }

// Text returns the string payload.
func (c Cell) Text() (string, bool) { return c.s, c.Type == schema.String && !c.Null }

// Boolean returns the boolean payload.
func (c Cell) Boolean() (bool, bool) { return c.b, c.Type == schema.Boolean && !c.Null }

// Time returns the date payload.
func (c Cell) Time() (time.Time, bool) { return c.t, c.Type == schema.Date && !c.Null }

// Number returns integer and double payloads as float64.
func (c Cell) Number() (float64, bool) {
	if c.Null {
		return 0, false
	}
	switch c.Type {
	case schema.Integer:
		return float64(c.i), true
	case schema.Double:
		return c.f, true
	}
	return 0, false
}

// Value returns the payload as a database/sql friendly value (nil for NULL).
func (c Cell) Value() any {
	if c.Null {
		return nil
	}
	switch c.Type {
	case schema.Integer:
		return c.i
	case schema.Double:
		return c.f
	case schema.String:
		return c.s
	case schema.Boolean:
		return c.b
	case schema.Date:
		return c.t
	}
	return nil
}

func (c Cell) String() string {
	if c.Null {
		return "NULL"
	}
	switch c.Type {
	case schema.Integer:
		return strconv.FormatInt(c.i, 10)
	case schema.Double:
		return strconv.FormatFloat(c.f, 'f', -1, 64)
	case schema.String:
		return c.s
	case schema.Boolean:
		return strconv.FormatBool(c.b)
	case schema.Date:
		return c.t.Format("2006-01-02")
	}
	return fmt.Sprintf("<%s>", c.Type)
}

// Equal compares type, nullness and payload. Doubles compare by value, with
// NaN equal to NaN.
func (c Cell) Equal(o Cell) bool {
	if c.Type != o.Type || c.Null != o.Null {
		return false
	}
	if c.Null {
		return true
	}
	switch c.Type {
	case schema.Integer:
		return c.i == o.i
	case schema.Double:
		return c.f == o.f || (math.IsNaN(c.f) && math.IsNaN(o.f))
	case schema.String:
		return c.s == o.s
	case schema.Boolean:
		return c.b == o.b
	case schema.Date:
		return c.t.Equal(o.t)
	}
	return false
}

// DefaultDateLayouts are tried in order when no layout is configured.
var DefaultDateLayouts = []string{"2006-01-02", "Jan-2006", "01/02/2006", time.RFC3339}

// ParseOptions controls how raw text becomes typed cells.
type ParseOptions struct {
	// DateLayouts are tried in order; empty means DefaultDateLayouts.
	DateLayouts []string
	// Truthy/Falsy extend the boolean vocabulary (case-insensitive).
	Truthy []string
	Falsy  []string
}

var (
	defaultTruthy = []string{"true", "t", "yes", "y", "1"}
	defaultFalsy  = []string{"false", "f", "no", "n", "0"}
)

// Parse converts raw text into a Cell of type t. Empty input yields a NULL
// cell. Numeric parsing tolerates surrounding spaces and a trailing percent
// sign ("13.56%"), which is common in loan exports.
func Parse(raw string, t schema.Type, opt ParseOptions) (Cell, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null(t), nil
	}
	switch t {
	case schema.Integer:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Cell{}, fmt.Errorf("parse integer %q: %w", s, err)
		}
		return Int(v), nil
	case schema.Double:
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return Cell{}, fmt.Errorf("parse double %q: %w", s, err)
		}
		return Double(v), nil
	case schema.String:
		return Str(s), nil
	case schema.Boolean:
		l := strings.ToLower(s)
		if contains(defaultTruthy, l) || containsFold(opt.Truthy, l) {
			return Bool(true), nil
		}
		if contains(defaultFalsy, l) || containsFold(opt.Falsy, l) {
			return Bool(false), nil
		}
		return Cell{}, fmt.Errorf("parse boolean %q: not in vocabulary", s)
	case schema.Date:
		layouts := opt.DateLayouts
		if len(layouts) == 0 {
			layouts = DefaultDateLayouts
		}
		for _, l := range layouts {
			if tm, err := time.Parse(l, s); err == nil {
				return Date(tm), nil
			}
		}
		return Cell{}, fmt.Errorf("parse date %q: no layout matched", s)
	}
	return Cell{}, fmt.Errorf("unsupported type %q", t)
}

// Infer picks the narrowest type that parses every non-empty sample, trying
// integer, double, boolean, date and falling back to string.
func Infer(samples []string, opt ParseOptions) schema.Type {
	candidates := []schema.Type{schema.Integer, schema.Double, schema.Boolean, schema.Date}
	for _, t := range candidates {
		ok, seen := true, false
		for _, s := range samples {
			if strings.TrimSpace(s) == "" {
				continue
			}
			seen = true
			if _, err := Parse(s, t, opt); err != nil {
				ok = false
				break
			}
		}
		if ok && seen {
			return t
		}
	}
	return schema.String
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func containsFold(xs []string, s string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
