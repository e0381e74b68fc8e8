package pipeline

import (
	"time"
)

// State is the position of one object key in the per-key state machine:
//
//	Discovered → Loaded → Validated → Transformed → Filtered → Written → Cleaned
//
// with Failed reachable from every non-terminal state.
type State string

const (
	Discovered  State = "discovered"
	Loaded      State = "loaded"
	Validated   State = "validated"
	Transformed State = "transformed"
	Filtered    State = "filtered"
	Written     State = "written"
	Cleaned     State = "cleaned"
	Failed      State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Cleaned || s == Failed }

// Run is the record of one key's trip through the stages.
type Run struct {
	RunID string
	// Seq is the discovery position of Key within the batch, from 0.
	Seq   int
	Key   string
	State State
	// Stage names the stage that failed when State is Failed.
	Stage string
	Err   error

	RowsIn   int   // rows loaded
	RowsOut  int   // rows surviving the filter
	Written  int64 // rows appended to the sink
	Checksum uint64

	Started time.Time
	Elapsed time.Duration
}

// Outcome renders the terminal state, e.g. "cleaned" or "failed(sink)".
func (r Run) Outcome() string {
	if r.State == Failed {
		return "failed(" + r.Stage + ")"
	}
	return string(r.State)
}

// fail moves the run to Failed(stage).
func (r *Run) fail(stage string, err error) {
	r.State = Failed
	r.Stage = stage
	r.Err = err
}

// Report summarizes one batch run.
type Report struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	// Runs are ordered by discovery.
	Runs []Run
}

// Cleaned counts keys that completed every stage.
func (r Report) Cleaned() int { return r.count(Cleaned) }

// Failed counts keys that ended in Failed.
func (r Report) Failed() int { return r.count(Failed) }

func (r Report) count(s State) int {
	n := 0
	for _, run := range r.Runs {
		if run.State == s {
			n++
		}
	}
	return n
}

// Written sums the rows appended across all keys.
func (r Report) Written() int64 {
	var n int64
	for _, run := range r.Runs {
		n += run.Written
	}
	return n
}
