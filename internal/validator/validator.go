// Package validator is the schema gate between loading and transforming.
package validator

import (
	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/schema"
)

// Validator checks datasets against a registry's expected schema.
type Validator struct {
	reg *schema.Registry
}

// New returns a Validator for reg.
func New(reg *schema.Registry) *Validator { return &Validator{reg: reg} }

// Validate returns ds unchanged when its sorted (name, type) pairs equal the
// expected schema's. Missing, extra or mistyped columns fail with
// SchemaMismatch describing every difference.
func (v *Validator) Validate(ds *dataset.Dataset) (*dataset.Dataset, error) {
	diff := schema.Compare(v.reg.Expected(), ds.Schema())
	if !diff.Empty() {
		return nil, etlerr.Newf(etlerr.SchemaMismatch, ds.Key, "schema %s: %s", v.reg.Name(), diff)
	}
	return ds, nil
}
