package schema

import "fmt"

// Field is the declarative form of a column as it appears in pipeline
// configuration.
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"` // "integer" | "double" | "string" | "boolean" | "date"
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Contract is the declared schema of one dataset family. It is resolved by
// the configuration layer; the pipeline core only sees the Registry built
// from it.
type Contract struct {
	Name   string  `json:"name" yaml:"name"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// Registry holds the expected schema that every loaded dataset must match.
type Registry struct {
	name     string
	expected Schema
	required map[string]bool
}

// NewRegistry resolves a contract into a Registry.
func NewRegistry(c Contract) (*Registry, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("contract %q: no fields", c.Name)
	}
	cols := make([]Column, 0, len(c.Fields))
	req := make(map[string]bool)
	for i, f := range c.Fields {
		t, err := ParseType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("contract %q field %d (%s): %w", c.Name, i, f.Name, err)
		}
		cols = append(cols, Column{Name: f.Name, Type: t})
		if f.Required {
			req[f.Name] = true
		}
	}
	s, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("contract %q: %w", c.Name, err)
	}
	return &Registry{name: c.Name, expected: s, required: req}, nil
}

// RegistryFor wraps an already-built Schema.
func RegistryFor(name string, s Schema) *Registry {
	return &Registry{name: name, expected: s, required: map[string]bool{}}
}

// Name returns the contract name.
func (r *Registry) Name() string { return r.name }

// Expected returns the declared schema.
func (r *Registry) Expected() Schema { return r.expected }

// Required reports whether NULLs are disallowed in the named column.
func (r *Registry) Required(name string) bool { return r.required[name] }

// Matches reports whether observed equals the declared schema ignoring order.
func (r *Registry) Matches(observed Schema) bool { return r.expected.Equal(observed) }
