package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

// CopyFn is a backend's bulk append. It matches Repository.CopyFrom.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches appends rows in batches of batchSize through copyFn and returns
// the running total reported by copyFn together with the first error. Rows of
// batches committed before a failure stay counted, so the total is what a
// caller must treat as already written.
//
// A progress line is logged after each successful flush when verbose is set.
func LoadBatches(ctx context.Context, columns []string, rows [][]any, batchSize int, verbose bool, copyFn CopyFn) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total   int64
		batches int
		start   = time.Now()
		last    = start
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := min(lo+batchSize, len(rows))
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Printf("storage: copy failed batch=%d inserted=%d total=%d err=%v", batches+1, n, total, err)
			return total, err
		}
		batches++
		if verbose {
			now := time.Now()
			since := now.Sub(last)
			rps := float64(0)
			if since > 0 {
				rps = float64(n) / since.Seconds()
			}
			log.Printf("storage: batch #%d rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
				batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
			last = now
		}
	}
	return total, nil
}
