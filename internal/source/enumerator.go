// Package source turns a paginated bucket listing into a single forward-only
// sequence of object keys.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"bucketetl/internal/etlerr"
	"bucketetl/internal/objectstore"
)

// Options selects which keys of a bucket are produced.
type Options struct {
	Bucket string
	// Prefix restricts listing server-side.
	Prefix string
	// Suffix, when set, keeps only keys ending with it (e.g. ".csv").
	Suffix string
	// Verbose logs each fetched page.
	Verbose bool
}

// Enumerator yields the keys of one bucket. It holds the pagination cursor
// internally and never restarts: once exhausted or failed, every further call
// returns the same result. Next is safe for concurrent callers; advances are
// serialized.
type Enumerator struct {
	store objectstore.Store
	opt   Options

	mu      sync.Mutex
	checked bool
	buf     []string
	token   string
	last    bool // the final page has been fetched
	err     error
	pages   int
	yielded int
}

// New returns an Enumerator over opt.Bucket.
func New(store objectstore.Store, opt Options) *Enumerator {
	return &Enumerator{store: store, opt: opt}
}

// Check verifies the bucket is reachable. It is called implicitly by the first
// Next; calling it up front lets a launcher fail before doing any work.
func (e *Enumerator) Check(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkLocked(ctx)
}

func (e *Enumerator) checkLocked(ctx context.Context) error {
	if e.checked {
		return e.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.checked = true
	if err := e.store.HeadBucket(ctx, e.opt.Bucket); err != nil {
		e.err = etlerr.New(etlerr.SourceUnavailable, "", fmt.Errorf("bucket %s: %w", e.opt.Bucket, err))
	}
	return e.err
}

// Next returns the next key. ok is false once the listing is exhausted; a
// non-nil error is SourceUnavailable or SourceListingError (or the context
// error) and is sticky.
func (e *Enumerator) Next(ctx context.Context) (key string, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(ctx); err != nil {
		return "", false, err
	}
	for {
		if e.err != nil {
			return "", false, e.err
		}
		if len(e.buf) > 0 {
			key, e.buf = e.buf[0], e.buf[1:]
			e.yielded++
			return key, true, nil
		}
		if e.last {
			return "", false, nil
		}
		if err := e.fetchLocked(ctx); err != nil {
			if ctx.Err() != nil {
				// Cancellation is not a listing failure and is not sticky.
				return "", false, ctx.Err()
			}
			e.err = err
		}
	}
}

// Stats returns the number of pages fetched and keys yielded so far.
func (e *Enumerator) Stats() (pages, keys int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages, e.yielded
}

func (e *Enumerator) fetchLocked(ctx context.Context) error {
	requested := e.token
	p, err := e.store.ListObjects(ctx, e.opt.Bucket, e.opt.Prefix, requested)
	if err != nil {
		if errors.Is(err, objectstore.ErrBucketNotFound) {
			return etlerr.New(etlerr.SourceUnavailable, "", err)
		}
		return etlerr.New(etlerr.SourceListingError, "", fmt.Errorf("page %d: %w", e.pages+1, err))
	}
	e.pages++

	switch {
	case p.KeyCount != len(p.Keys):
		return etlerr.Newf(etlerr.SourceListingError, "",
			"page %d reports %d keys but carries %d", e.pages, p.KeyCount, len(p.Keys))
	case p.Truncated && p.NextToken == "":
		return etlerr.Newf(etlerr.SourceListingError, "", "page %d is truncated without a continuation token", e.pages)
	case p.Truncated && p.NextToken == requested:
		return etlerr.Newf(etlerr.SourceListingError, "", "page %d repeats continuation token %q", e.pages, requested)
	}

	kept := 0
	for _, k := range p.Keys {
		if strings.HasSuffix(k, "/") {
			continue
		}
		if e.opt.Suffix != "" && !strings.HasSuffix(k, e.opt.Suffix) {
			continue
		}
		e.buf = append(e.buf, k)
		kept++
	}
	e.token = p.NextToken
	e.last = !p.Truncated
	if e.opt.Verbose {
		log.Printf("source: bucket=%s page=%d keys=%d kept=%d truncated=%v", e.opt.Bucket, e.pages, len(p.Keys), kept, p.Truncated)
	}
	return nil
}
