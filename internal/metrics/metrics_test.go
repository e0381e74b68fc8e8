package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

// fakeBackend records every call.
type fakeBackend struct {
	mu         sync.Mutex
	counters   []counterCall
	histograms []histCall
	flushes    int
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// Tests in this file swap the global backend and therefore do not run in
// parallel.

func TestRecordStep(t *testing.T) {
	fb := &fakeBackend{}
	SetBackend(fb)
	defer Reset()

	RecordStep("loans", "load", nil, 2*time.Second)
	RecordStep("loans", "sink", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("calls: counters=%d histograms=%d, want 2 and 2", len(fb.counters), len(fb.histograms))
	}
	c0, c1 := fb.counters[0], fb.counters[1]
	if c0.name != "etl_step_total" || c0.labels["step"] != "load" || c0.labels["status"] != "success" || c0.labels["job"] != "loans" {
		t.Fatalf("counter[0] = %#v", c0)
	}
	if c1.labels["status"] != "failure" {
		t.Fatalf("counter[1] status = %q, want failure", c1.labels["status"])
	}
	if h := fb.histograms[1]; h.name != "etl_step_duration_seconds" || h.value != 1.5 {
		t.Fatalf("hist[1] = %#v", h)
	}
}

func TestRecordRowAndKey(t *testing.T) {
	fb := &fakeBackend{}
	SetBackend(fb)
	defer Reset()

	RecordRow("loans", RowsLoaded, 14)
	RecordRow("loans", RowsFilteredOut, 0) // ignored
	RecordRow("loans", RowsWritten, -3)    // ignored
	RecordKey("loans", "cleaned")

	if len(fb.counters) != 2 {
		t.Fatalf("counter calls = %d, want 2", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != "etl_records_total" || c.delta != 14 || c.labels["kind"] != "loaded" {
		t.Fatalf("records = %#v", c)
	}
	if c := fb.counters[1]; c.name != "etl_keys_total" || c.delta != 1 || c.labels["outcome"] != "cleaned" {
		t.Fatalf("keys = %#v", c)
	}
}

func TestSetBackendNilAndFlush(t *testing.T) {
	fb := &fakeBackend{}
	SetBackend(fb)
	defer Reset()

	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushes != 1 {
		t.Fatalf("flushes = %d, want 1 (nil must not replace backend)", fb.flushes)
	}

	Reset()
	if err := Flush(); err != nil {
		t.Fatalf("no-op Flush: %v", err)
	}
	RecordStep("j", "s", nil, time.Millisecond)
}
