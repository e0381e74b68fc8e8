// Package sink appends a filtered dataset to the destination table.
package sink

import (
	"context"
	"log"
	"sync"

	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/storage"
)

// DefaultBatchSize is used when Options.BatchSize is zero.
const DefaultBatchSize = 5000

// Options configures a Writer.
type Options struct {
	// Kind selects the DDL dialect for AutoCreateTable.
	Kind  string
	Table string
	// BatchSize bounds the rows sent per CopyFrom call.
	BatchSize int
	// AutoCreateTable issues CREATE TABLE IF NOT EXISTS from the first
	// dataset's schema before its rows are written.
	AutoCreateTable bool
	Verbose         bool
}

// Writer appends datasets through a storage.Repository. It never updates or
// deletes existing rows. A Writer is safe for concurrent use when its
// repository is.
type Writer struct {
	repo storage.Repository
	opt  Options

	mu      sync.Mutex
	ensured bool
}

// New returns a Writer.
func New(repo storage.Repository, opt Options) *Writer {
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	return &Writer{repo: repo, opt: opt}
}

// Write appends every row of ds and returns the number written. On failure
// the returned SinkError carries the rows already appended, which is also
// the returned count.
func (w *Writer) Write(ctx context.Context, ds *dataset.Dataset) (int64, error) {
	if err := w.ensureTable(ctx, ds); err != nil {
		return 0, &etlerr.Error{Kind: etlerr.SinkError, Key: ds.Key, Err: err}
	}

	cols := ds.Schema().Names()
	rows, err := ds.Values(cols)
	if err != nil {
		return 0, &etlerr.Error{Kind: etlerr.SinkError, Key: ds.Key, Err: err}
	}
	n, err := storage.LoadBatches(ctx, cols, rows, w.opt.BatchSize, w.opt.Verbose, w.repo.CopyFrom)
	if err != nil {
		return n, &etlerr.Error{Kind: etlerr.SinkError, Key: ds.Key, Written: n, Err: err}
	}
	if w.opt.Verbose {
		log.Printf("sink: key=%s table=%s written=%d", ds.Key, w.opt.Table, n)
	}
	return n, nil
}

func (w *Writer) ensureTable(ctx context.Context, ds *dataset.Dataset) error {
	if !w.opt.AutoCreateTable {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ensured {
		return nil
	}
	if err := storage.EnsureTable(ctx, w.opt.Kind, w.repo, w.opt.Table, ds.Schema()); err != nil {
		return err
	}
	w.ensured = true
	if w.opt.Verbose {
		log.Printf("sink: ensured table=%s kind=%s cols=%d", w.opt.Table, w.opt.Kind, ds.Schema().Len())
	}
	return nil
}
