// Package transformer applies deterministic, in-place rewrites to a loaded
// dataset. Transforms are composed into a Chain and run in order.
package transformer

import (
	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/transformer/builtin"
)

// Transformer rewrites a dataset in place.
type Transformer interface {
	Apply(ds *dataset.Dataset) error
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply runs each transformer in order and stops at the first error.
func (c Chain) Apply(ds *dataset.Dataset) error {
	for _, t := range c {
		if err := t.Apply(ds); err != nil {
			return err
		}
	}
	return nil
}

// Options selects the transforms of the default chain.
type Options struct {
	// Precision is the number of decimal places doubles are rounded to.
	Precision int
	// Renames are applied in order after rounding.
	Renames []builtin.Rename
	// NormalizeText trims string cells and repairs mis-decoded spaces.
	NormalizeText bool
	// DeDup, when it has keys, drops duplicate rows within the dataset.
	DeDup builtin.DeDup
}

// DefaultOptions rounds doubles to 2 places and renames desc to description.
func DefaultOptions() Options {
	return Options{
		Precision: 2,
		Renames:   []builtin.Rename{{From: "desc", To: "description"}},
	}
}

// New builds the chain: rounding, then renames, then the optional text
// normalization and de-duplication.
func New(opt Options) Chain {
	c := Chain{builtin.Round{Places: opt.Precision}}
	for _, r := range opt.Renames {
		c = append(c, r)
	}
	if opt.NormalizeText {
		c = append(c, builtin.Normalize{})
	}
	if len(opt.DeDup.Keys) > 0 {
		c = append(c, opt.DeDup)
	}
	return c
}

// Transform runs c on ds and classifies any failure as a TransformError for
// ds.Key. It returns ds itself on success.
func (c Chain) Transform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	if err := c.Apply(ds); err != nil {
		return nil, etlerr.New(etlerr.TransformError, ds.Key, err)
	}
	return ds, nil
}
