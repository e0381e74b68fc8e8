package pipeline

import (
	"context"

	"bucketetl/internal/dataset"
	"bucketetl/internal/schema"
)

// Stage is one step of the per-key chain. Do receives the dataset produced by
// the previous stage (nil for the first) and returns the one handed to the
// next. On success the run advances to Reached.
type Stage struct {
	Name    string
	Reached State
	Do      func(ctx context.Context, run *Run, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Stage names.
const (
	StageLoad      = "load"
	StageValidate  = "validate"
	StageTransform = "transform"
	StageFilter    = "filter"
	StageSink      = "sink"
	StageCleanup   = "cleanup"
)

// Loader materializes an object as a dataset typed against target.
type Loader interface {
	Load(ctx context.Context, key string, target schema.Schema) (*dataset.Dataset, error)
}

// Validator rejects datasets whose schema differs from the expected one.
type Validator interface {
	Validate(ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Transformer rewrites a dataset.
type Transformer interface {
	Transform(ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Filter drops rows.
type Filter interface {
	Filter(ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Sink appends a dataset and reports the rows written.
type Sink interface {
	Write(ctx context.Context, ds *dataset.Dataset) (int64, error)
}

// Cleaner deletes a processed key.
type Cleaner interface {
	Cleanup(ctx context.Context, key string) error
}

// Components are the collaborators of the default chain.
type Components struct {
	Loader      Loader
	Target      schema.Schema
	Validator   Validator
	Transformer Transformer
	Filter      Filter
	Sink        Sink
	Cleaner     Cleaner
}

// DefaultStages builds load, validate, transform, filter, sink and cleanup in
// that order. Cleanup is last and only runs when the sink wrote everything.
func DefaultStages(c Components) []Stage {
	return []Stage{
		{Name: StageLoad, Reached: Loaded, Do: func(ctx context.Context, run *Run, _ *dataset.Dataset) (*dataset.Dataset, error) {
			ds, err := c.Loader.Load(ctx, run.Key, c.Target)
			if err != nil {
				return nil, err
			}
			run.RowsIn = ds.Len()
			run.Checksum = ds.Checksum
			return ds, nil
		}},
		{Name: StageValidate, Reached: Validated, Do: func(_ context.Context, _ *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return c.Validator.Validate(ds)
		}},
		{Name: StageTransform, Reached: Transformed, Do: func(_ context.Context, _ *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return c.Transformer.Transform(ds)
		}},
		{Name: StageFilter, Reached: Filtered, Do: func(_ context.Context, run *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			out, err := c.Filter.Filter(ds)
			if err != nil {
				return nil, err
			}
			run.RowsOut = out.Len()
			return out, nil
		}},
		{Name: StageSink, Reached: Written, Do: func(ctx context.Context, run *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			n, err := c.Sink.Write(ctx, ds)
			run.Written = n
			return ds, err
		}},
		{Name: StageCleanup, Reached: Cleaned, Do: func(ctx context.Context, run *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return ds, c.Cleaner.Cleanup(ctx, run.Key)
		}},
	}
}
