// Package pipeline drives every object key of a bucket through the stages
// load, validate, transform, filter, sink and cleanup.
//
// A key that fails any stage ends in Failed(stage) and stays in the bucket;
// other keys are unaffected. Cleanup only runs after the sink has appended
// every row of the key.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bucketetl/internal/dataset"
	"bucketetl/internal/metrics"
)

// Source yields object keys. Next returns ok=false once exhausted; its errors
// are final for the batch.
type Source interface {
	Check(ctx context.Context) error
	Next(ctx context.Context) (key string, ok bool, err error)
}

// Config tunes a Controller.
type Config struct {
	// Job labels metrics; defaults to "bucketetl".
	Job string
	// Workers is the number of keys processed concurrently. Values below 1
	// mean one.
	Workers int
	// KeyTimeout bounds the processing of a single key when positive.
	KeyTimeout time.Duration
	Verbose    bool
}

// Controller runs batches.
type Controller struct {
	cfg    Config
	src    Source
	stages []Stage
}

// New returns a Controller that runs stages, in order, for every key of src.
func New(cfg Config, src Source, stages []Stage) (*Controller, error) {
	if src == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if len(stages) == 0 {
		return nil, errors.New("pipeline: no stages")
	}
	for i, st := range stages {
		if st.Name == "" || st.Do == nil {
			return nil, fmt.Errorf("pipeline: stage %d is incomplete", i)
		}
	}
	if cfg.Job == "" {
		cfg.Job = "bucketetl"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Controller{cfg: cfg, src: src, stages: stages}, nil
}

// Run processes every key the source yields and returns one Run per key in
// discovery order. Per-key failures are recorded in the report and never
// returned. The error is non-nil only when the source is unavailable, the
// listing fails (keys discovered before the failure are still processed and
// reported) or ctx is done.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: time.Now()}
	if err := c.src.Check(ctx); err != nil {
		rep.Elapsed = time.Since(rep.Started)
		metrics.RecordStep(c.cfg.Job, "source", err, rep.Elapsed)
		log.Printf("pipeline: run_id=%s source check failed: %v", rep.RunID, err)
		c.finish(rep)
		return rep, err
	}

	var (
		mu   sync.Mutex
		seq  int
		runs []Run
	)
	next := func() (string, int, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		key, ok, err := c.src.Next(ctx)
		if err != nil || !ok {
			return "", 0, false, err
		}
		n := seq
		seq++
		return key, n, true, nil
	}

	var g errgroup.Group
	for w := 0; w < c.cfg.Workers; w++ {
		g.Go(func() error {
			for {
				key, n, ok, err := next()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				run := c.process(ctx, rep.RunID, n, key)
				mu.Lock()
				runs = append(runs, run)
				mu.Unlock()
			}
		})
	}
	err := g.Wait()

	sort.Slice(runs, func(i, j int) bool { return runs[i].Seq < runs[j].Seq })
	rep.Runs = runs
	rep.Elapsed = time.Since(rep.Started)
	if err != nil {
		log.Printf("pipeline: run_id=%s enumeration stopped after %d keys: %v", rep.RunID, len(runs), err)
	}
	c.finish(rep)
	return rep, err
}

// finish logs the summary and flushes metrics; every return path of Run goes
// through it.
func (c *Controller) finish(rep Report) {
	c.summarize(rep)
	if err := metrics.Flush(); err != nil {
		log.Printf("pipeline: metrics flush failed: %v", err)
	}
}

// process walks one key through the stages. It never returns an error; the
// outcome is in the Run.
func (c *Controller) process(ctx context.Context, runID string, seq int, key string) Run {
	run := Run{RunID: runID, Seq: seq, Key: key, State: Discovered, Started: time.Now()}
	if c.cfg.KeyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.KeyTimeout)
		defer cancel()
	}

	var ds *dataset.Dataset
	for _, st := range c.stages {
		if err := ctx.Err(); err != nil {
			run.fail(st.Name, err)
			break
		}
		start := time.Now()
		out, err := st.Do(ctx, &run, ds)
		metrics.RecordStep(c.cfg.Job, st.Name, err, time.Since(start))
		if err != nil {
			run.fail(st.Name, err)
			break
		}
		run.State = st.Reached
		switch st.Reached {
		case Loaded:
			metrics.RecordRow(c.cfg.Job, metrics.RowsLoaded, int64(run.RowsIn))
		case Filtered:
			metrics.RecordRow(c.cfg.Job, metrics.RowsFilteredOut, int64(run.RowsIn-run.RowsOut))
		}
		ds = out
	}
	run.Elapsed = time.Since(run.Started)

	metrics.RecordRow(c.cfg.Job, metrics.RowsWritten, run.Written)
	metrics.RecordKey(c.cfg.Job, run.Outcome())
	c.logRun(run)
	return run
}

func (c *Controller) logRun(r Run) {
	stage := r.Stage
	if stage == "" {
		stage = "-"
	}
	line := fmt.Sprintf("pipeline: key=%s outcome=%s stage=%s rows_in=%d rows_out=%d written=%d checksum=%016x elapsed=%s",
		r.Key, r.State, stage, r.RowsIn, r.RowsOut, r.Written, r.Checksum, r.Elapsed.Truncate(time.Millisecond))
	if r.Err != nil {
		line += fmt.Sprintf(" err=%q", r.Err.Error())
	}
	log.Print(line)
}

func (c *Controller) summarize(rep Report) {
	log.Printf("summary: keys=%d cleaned=%d failed=%d elapsed=%s",
		len(rep.Runs), rep.Cleaned(), rep.Failed(), rep.Elapsed.Truncate(time.Millisecond))
	if c.cfg.Verbose {
		log.Printf("summary: run_id=%s job=%s workers=%d written=%d", rep.RunID, c.cfg.Job, c.cfg.Workers, rep.Written())
	}
}
