// Package probe samples the head of a bucket object and infers a schema
// contract from it, so a new export can be described without hand-writing
// every column.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"bucketetl/internal/objectstore"
	pcsv "bucketetl/internal/parser/csv"
	"bucketetl/internal/schema"
)

// DefaultMaxBytes is the sample size when Options.MaxBytes is zero.
const DefaultMaxBytes = 1 << 20

// Options control the sampling.
type Options struct {
	Bucket string
	// MaxBytes to sample from the start of the object.
	MaxBytes int
	// CSV options; MaxRows is ignored.
	CSV pcsv.Options
	// Name of the resulting contract; defaults to the key.
	Name string
}

// Result is the inferred contract plus what it was inferred from.
type Result struct {
	Contract schema.Contract
	// Rows is the number of complete data rows sampled.
	Rows int
	// Truncated reports whether the object is larger than the sample.
	Truncated bool
}

// Probe reads the first MaxBytes of key, cuts the sample back to the last
// complete line and infers a type for every column.
func Probe(ctx context.Context, store objectstore.Store, key string, opt Options) (Result, error) {
	n := opt.MaxBytes
	if n <= 0 {
		n = DefaultMaxBytes
	}
	rc, err := store.GetObject(ctx, opt.Bucket, key)
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", key, err)
	}
	defer rc.Close()

	sample, truncated, err := peek(rc, n)
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", key, err)
	}

	csvOpt := opt.CSV
	csvOpt.MaxRows = 0
	ds, err := pcsv.NewParser(csvOpt).Parse(ctx, key, bytes.NewReader(sample), schema.Schema{})
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", key, err)
	}

	name := opt.Name
	if name == "" {
		name = key
	}
	c := schema.Contract{Name: name}
	for _, col := range ds.Schema().Columns {
		c.Fields = append(c.Fields, schema.Field{Name: col.Name, Type: string(col.Type)})
	}
	return Result{Contract: c, Rows: ds.Len(), Truncated: truncated}, nil
}

// peek returns at most n bytes of r. When r holds more, the sample is cut
// after its last newline so no partial row is parsed.
func peek(r io.Reader, n int) ([]byte, bool, error) {
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)+1))
	if err != nil {
		return nil, false, err
	}
	if len(buf) <= n {
		return buf, false, nil
	}
	buf = buf[:n]
	i := bytes.LastIndexByte(buf, '\n')
	if i < 0 {
		return nil, true, fmt.Errorf("no complete line in the first %d bytes", n)
	}
	return buf[:i+1], true, nil
}
