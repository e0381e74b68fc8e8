package config

import (
	"fmt"

	"bucketetl/internal/dataset"
	"bucketetl/internal/filter"
	pcsv "bucketetl/internal/parser/csv"
	"bucketetl/internal/schema"
	"bucketetl/internal/transformer"
)

// Registry resolves the schema contract.
func (p Pipeline) Registry() (*schema.Registry, error) {
	return schema.NewRegistry(p.Schema)
}

// CSVOptions resolves the parser options, including the runtime row bound.
func (p Pipeline) CSVOptions() (pcsv.Options, error) {
	opt := pcsv.Options{
		TrimSpace:  p.CSV.TrimSpace,
		LazyQuotes: p.CSV.LazyQuotes,
		HeaderMap:  p.CSV.HeaderMap,
		MaxRows:    p.Runtime.MaxRows,
		Rewrites:   p.CSV.Rewrites,
		Cells:      p.cellOptions(),
	}
	if d := p.CSV.Delimiter; d != "" {
		r := []rune(d)
		if len(r) != 1 {
			return pcsv.Options{}, fmt.Errorf("csv.delimiter %q must be a single character", d)
		}
		opt.Comma = r[0]
	}
	return opt, nil
}

// TransformOptions resolves the transform chain options.
func (p Pipeline) TransformOptions() transformer.Options {
	return transformer.Options{
		Precision:     p.Transform.Precision,
		Renames:       p.Transform.Renames,
		NormalizeText: p.Transform.NormalizeText,
		DeDup:         p.Transform.DeDup,
	}
}

func (p Pipeline) cellOptions() dataset.ParseOptions {
	return dataset.ParseOptions{
		DateLayouts: p.CSV.DateLayouts,
		Truthy:      p.CSV.Truthy,
		Falsy:       p.CSV.Falsy,
	}
}

// Conjunction builds the row filter from the configured predicates. Literals
// are read with the same date layouts and boolean vocabulary as CSV cells.
func (p Pipeline) Conjunction() (filter.Conjunction, error) {
	cells := p.cellOptions()
	c := make(filter.Conjunction, 0, len(p.Filter.Predicates))
	for i, pr := range p.Filter.Predicates {
		cmp, err := filter.NewCompare(pr.Field, filter.Op(pr.Op), pr.Value)
		if err != nil {
			return nil, fmt.Errorf("filter.predicates[%d]: %w", i, err)
		}
		cmp.Cells = cells
		c = append(c, cmp)
	}
	return c, nil
}

// OutputSchema is the contract's schema after the configured renames, i.e.
// the columns that reach the filter and the sink.
func (p Pipeline) OutputSchema() (schema.Schema, error) {
	reg, err := p.Registry()
	if err != nil {
		return schema.Schema{}, err
	}
	s := reg.Expected()
	for _, r := range p.Transform.Renames {
		if s, _, err = s.Rename(r.From, r.To); err != nil {
			return schema.Schema{}, err
		}
	}
	return s, nil
}
