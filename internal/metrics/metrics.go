// Package metrics is a small, backend-agnostic facade for recording pipeline
// metrics.
//
// A global backend defaults to a no-op, so instrumentation is always safe to
// call. Concrete systems (Pushgateway, DogStatsD) live in subpackages and are
// installed with SetBackend by the launcher.
//
// Metric names:
//
//	etl_step_total{job,step,status}             per-stage executions
//	etl_step_duration_seconds{job,step,status}  per-stage latency
//	etl_records_total{job,kind}                 loaded, filtered_out, written
//	etl_keys_total{job,outcome}                 cleaned, failed
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset restores the no-op backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline stage and observes its
// latency, labelled success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter("etl_step_total", 1, lbls)
	b.ObserveHistogram("etl_step_duration_seconds", d.Seconds(), lbls)
}

// Record kinds used by the pipeline.
const (
	RowsLoaded      = "loaded"
	RowsFilteredOut = "filtered_out"
	RowsWritten     = "written"
)

// RecordRow adds delta to the record counter of the given kind. Non-positive
// deltas are ignored.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter("etl_records_total", float64(delta), Labels{"job": job, "kind": kind})
}

// RecordKey counts one object key reaching a terminal outcome.
func RecordKey(job, outcome string) {
	current().IncCounter("etl_keys_total", 1, Labels{"job": job, "outcome": outcome})
}
