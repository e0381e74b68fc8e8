package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"bucketetl/internal/cleanup"
	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/filter"
	"bucketetl/internal/loader"
	"bucketetl/internal/metrics"
	"bucketetl/internal/objectstore/memstore"
	pcsv "bucketetl/internal/parser/csv"
	"bucketetl/internal/schema"
	"bucketetl/internal/sink"
	"bucketetl/internal/source"
	"bucketetl/internal/storage"
	_ "bucketetl/internal/storage/sqlite"
	"bucketetl/internal/transformer"
	"bucketetl/internal/validator"
)

const bucket = "loans-inbox"

var loans = schema.MustNew(
	schema.Column{Name: "id", Type: schema.Integer},
	schema.Column{Name: "loan_amnt", Type: schema.Double},
	schema.Column{Name: "loan_status", Type: schema.String},
	schema.Column{Name: "purpose", Type: schema.String},
	schema.Column{Name: "last_fico_range_low", Type: schema.Integer},
	schema.Column{Name: "desc", Type: schema.String},
)

const header = "id,loan_amnt,loan_status,purpose,last_fico_range_low,desc\n"

// Rows 1 and 5 survive the default filter.
const good = header +
	"1,1000.456,Fully Paid,car,720,new car\n" +
	"2,2000.5,Charged Off,car,720,x\n" +
	"3,3000.333,Current,other,750,\n" +
	"4,4000,Current,house,650,home\n" +
	"5,5000.125,Current,wedding,700,\n"

type recordingSink struct {
	mu   sync.Mutex
	keys []string
	rows int64
	err  error
}

func (s *recordingSink) Write(_ context.Context, ds *dataset.Dataset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 1, s.err
	}
	s.keys = append(s.keys, ds.Key)
	s.rows += int64(ds.Len())
	return int64(ds.Len()), nil
}

func components(store *memstore.Store, snk Sink) Components {
	return Components{
		Loader:      loader.New(store, pcsv.NewParser(pcsv.Options{}), loader.Options{Bucket: bucket}),
		Target:      loans,
		Validator:   validator.New(schema.RegistryFor("loans", loans)),
		Transformer: transformer.New(transformer.DefaultOptions()),
		Filter:      filter.Default(),
		Sink:        snk,
		Cleaner:     cleanup.New(store, bucket, false),
	}
}

func newController(t *testing.T, store *memstore.Store, cfg Config, stages []Stage) *Controller {
	t.Helper()
	c, err := New(cfg, source.New(store, source.Options{Bucket: bucket, Suffix: ".csv"}), stages)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func outcomes(rep Report) map[string]string {
	out := make(map[string]string, len(rep.Runs))
	for _, r := range rep.Runs {
		out[r.Key] = r.Outcome()
	}
	return out
}

func TestRun_EndToEndSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New(2)
	store.Put(bucket, "2024/01.csv", []byte(good))
	store.Put(bucket, "2024/02.csv", []byte(header+"6,1.999,Current,car,701,ok\n"))
	store.Put(bucket, "2024/03.csv", []byte("id,loan_amnt\n1,2\n"))
	store.Put(bucket, "2024/04.csv", []byte(header+"7,1,Current,car\n"))
	store.Put(bucket, "README.txt", []byte("not data"))

	path := filepath.Join(t.TempDir(), "warehouse.db")
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path, Table: "loans"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	w := sink.New(repo, sink.Options{Kind: "sqlite", Table: "loans", AutoCreateTable: true})

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, w))).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]string{
		"2024/01.csv": "cleaned",
		"2024/02.csv": "cleaned",
		"2024/03.csv": "failed(validate)",
		"2024/04.csv": "failed(load)",
	}
	if got := outcomes(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}
	if rep.Cleaned() != 2 || rep.Failed() != 2 || rep.Written() != 3 {
		t.Fatalf("cleaned=%d failed=%d written=%d", rep.Cleaned(), rep.Failed(), rep.Written())
	}
	first := rep.Runs[0]
	if first.RowsIn != 5 || first.RowsOut != 2 || first.Written != 2 || first.Checksum == 0 {
		t.Fatalf("first run = %+v", first)
	}
	if !errors.Is(rep.Runs[2].Err, etlerr.SchemaMismatch) {
		t.Fatalf("validate err = %v, want SchemaMismatch", rep.Runs[2].Err)
	}
	if !errors.Is(rep.Runs[3].Err, etlerr.MalformedRow) {
		t.Fatalf("load err = %v, want MalformedRow", rep.Runs[3].Err)
	}

	if got, want := store.Keys(bucket), []string{"2024/03.csv", "2024/04.csv", "README.txt"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("bucket keys = %v, want %v", got, want)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT "id", "loan_amnt", "description" FROM "loans" ORDER BY "id"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var got []string
	for rows.Next() {
		var id int64
		var amt float64
		var desc sql.NullString
		if err := rows.Scan(&id, &amt, &desc); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, fmt.Sprintf("%d|%.2f|%s|%v", id, amt, desc.String, desc.Valid))
	}
	wantRows := []string{"1|1000.46|new car|true", "5|5000.13||false", "6|2.00|ok|true"}
	if !reflect.DeepEqual(got, wantRows) {
		t.Fatalf("rows = %v, want %v", got, wantRows)
	}
}

func TestRun_SinkFailureKeepsObject(t *testing.T) {
	t.Parallel()

	store := memstore.New(0)
	store.Put(bucket, "a.csv", []byte(good))
	snk := &recordingSink{err: &etlerr.Error{Kind: etlerr.SinkError, Key: "a.csv", Written: 1, Err: errors.New("disk full")}}

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, snk))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := rep.Runs[0]
	if r.Outcome() != "failed(sink)" || r.Written != 1 || !errors.Is(r.Err, etlerr.SinkError) {
		t.Fatalf("run = %+v", r)
	}
	if !store.Has(bucket, "a.csv") {
		t.Fatalf("object deleted after a failed write")
	}
}

func TestRun_CleanupFailure(t *testing.T) {
	t.Parallel()

	store := memstore.New(0)
	store.Put(bucket, "a.csv", []byte(good))
	store.Put(bucket, "b.csv", []byte(good))
	store.Inject(memstore.Faults{Delete: map[string]error{"a.csv": errors.New("access denied")}})
	snk := &recordingSink{}

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, snk))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{"a.csv": "failed(cleanup)", "b.csv": "cleaned"}
	if got := outcomes(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}
	if !errors.Is(rep.Runs[0].Err, etlerr.CleanupError) || rep.Runs[0].Written != 2 {
		t.Fatalf("run = %+v", rep.Runs[0])
	}
	if snk.rows != 4 {
		t.Fatalf("sink rows = %d, want 4", snk.rows)
	}
}

func TestRun_SourceUnavailable(t *testing.T) {
	t.Parallel()

	store := memstore.New(0)
	rep, err := newController(t, store, Config{}, DefaultStages(components(store, &recordingSink{}))).Run(context.Background())
	if !errors.Is(err, etlerr.SourceUnavailable) {
		t.Fatalf("err = %v, want SourceUnavailable", err)
	}
	if len(rep.Runs) != 0 || rep.RunID == "" {
		t.Fatalf("report = %+v", rep)
	}
}

type flushCounter struct {
	mu      sync.Mutex
	steps   []string
	flushes int
}

func (f *flushCounter) IncCounter(name string, _ float64, labels metrics.Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "etl_step_total" {
		f.steps = append(f.steps, labels["step"]+":"+labels["status"])
	}
}
func (f *flushCounter) ObserveHistogram(string, float64, metrics.Labels) {}
func (f *flushCounter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// Not parallel: installs a global metrics backend.
func TestRun_SourceUnavailableFlushesMetrics(t *testing.T) {
	fc := &flushCounter{}
	metrics.SetBackend(fc)
	defer metrics.Reset()

	store := memstore.New(0)
	_, err := newController(t, store, Config{}, DefaultStages(components(store, &recordingSink{}))).Run(context.Background())
	if !errors.Is(err, etlerr.SourceUnavailable) {
		t.Fatalf("err = %v, want SourceUnavailable", err)
	}
	if fc.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", fc.flushes)
	}
	if got, want := fc.steps, []string{"source:failure"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
}

func TestRun_FailedKeysDoNotHideLaterPages(t *testing.T) {
	t.Parallel()

	store := memstore.New(2)
	bad := header + "9,1,Current,car\n"
	files := map[string]string{
		"k1.csv": good,
		"k2.csv": bad,
		"k3.csv": good,
		"k4.csv": bad,
		"k5.csv": good,
		"k6.csv": good,
		"k7.csv": bad,
	}
	for k, body := range files {
		store.Put(bucket, k, []byte(body))
	}
	snk := &recordingSink{}

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, snk))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{
		"k1.csv": "cleaned",
		"k2.csv": "failed(load)",
		"k3.csv": "cleaned",
		"k4.csv": "failed(load)",
		"k5.csv": "cleaned",
		"k6.csv": "cleaned",
		"k7.csv": "failed(load)",
	}
	if got := outcomes(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}
	for i, r := range rep.Runs {
		if want := fmt.Sprintf("k%d.csv", i+1); r.Key != want {
			t.Fatalf("run %d key = %s, want %s", i, r.Key, want)
		}
	}
	if got, want := store.Keys(bucket), []string{"k2.csv", "k4.csv", "k7.csv"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("bucket keys = %v, want %v", got, want)
	}
	if got, want := snk.keys, []string{"k1.csv", "k3.csv", "k5.csv", "k6.csv"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("written keys = %v, want %v", got, want)
	}
}

func TestRun_ListingErrorKeepsEarlierRuns(t *testing.T) {
	t.Parallel()

	store := memstore.New(1)
	for _, k := range []string{"a.csv", "b.csv", "c.csv"} {
		store.Put(bucket, k, []byte(good))
	}
	store.Inject(memstore.Faults{List: func(token string) error {
		if token == "b.csv" {
			return errors.New("throttled")
		}
		return nil
	}})

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, &recordingSink{}))).Run(context.Background())
	if !errors.Is(err, etlerr.SourceListingError) {
		t.Fatalf("err = %v, want SourceListingError", err)
	}
	want := map[string]string{"a.csv": "cleaned", "b.csv": "cleaned"}
	if got := outcomes(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}
	if !store.Has(bucket, "c.csv") {
		t.Fatalf("undiscovered key was touched")
	}
}

func TestRun_WorkersKeepDiscoveryOrder(t *testing.T) {
	t.Parallel()

	store := memstore.New(3)
	var keys []string
	for i := 0; i < 12; i++ {
		k := fmt.Sprintf("part-%02d.csv", i)
		keys = append(keys, k)
		store.Put(bucket, k, []byte(good))
	}
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	stages := []Stage{{Name: "work", Reached: Cleaned, Do: func(_ context.Context, run *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(time.Duration(12-run.Seq) * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return ds, nil
	}}}

	rep, err := newController(t, store, Config{Workers: 4}, stages).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for i, r := range rep.Runs {
		if r.Seq != i {
			t.Fatalf("run %d has seq %d", i, r.Seq)
		}
		got = append(got, r.Key)
	}
	if !reflect.DeepEqual(got, keys) {
		t.Fatalf("keys = %v, want %v", got, keys)
	}
	if peak > 4 {
		t.Fatalf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestRun_KeyTimeout(t *testing.T) {
	t.Parallel()

	store := memstore.New(0)
	store.Put(bucket, "slow.csv", []byte(good))
	store.Put(bucket, "fast.csv", []byte(good))
	stages := []Stage{
		{Name: "load", Reached: Loaded, Do: func(ctx context.Context, run *Run, _ *dataset.Dataset) (*dataset.Dataset, error) {
			if run.Key != "slow.csv" {
				return nil, nil
			}
			<-ctx.Done()
			return nil, etlerr.New(etlerr.LoadError, run.Key, ctx.Err())
		}},
		{Name: "cleanup", Reached: Cleaned, Do: func(_ context.Context, _ *Run, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return ds, nil
		}},
	}

	rep, err := newController(t, store, Config{KeyTimeout: 20 * time.Millisecond}, stages).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{"fast.csv": "cleaned", "slow.csv": "failed(load)"}
	if got := outcomes(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}
	if !errors.Is(rep.Runs[1].Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", rep.Runs[1].Err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	store := memstore.New(0)
	store.Put(bucket, "a.csv", []byte(good))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newController(t, store, Config{}, DefaultStages(components(store, &recordingSink{}))).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rep.Runs) != 0 || !store.Has(bucket, "a.csv") {
		t.Fatalf("work done after cancellation: %+v", rep.Runs)
	}
}

func TestNew_RejectsIncompleteSetup(t *testing.T) {
	t.Parallel()

	src := source.New(memstore.New(0), source.Options{Bucket: bucket})
	if _, err := New(Config{}, nil, DefaultStages(Components{})); err == nil {
		t.Fatalf("nil source accepted")
	}
	if _, err := New(Config{}, src, nil); err == nil {
		t.Fatalf("empty stage list accepted")
	}
	if _, err := New(Config{}, src, []Stage{{Name: "x"}}); err == nil {
		t.Fatalf("stage without Do accepted")
	}
}

func TestRun_Outcome(t *testing.T) {
	t.Parallel()

	r := Run{State: Cleaned}
	if r.Outcome() != "cleaned" || !r.State.Terminal() {
		t.Fatalf("outcome = %s", r.Outcome())
	}
	r.fail(StageTransform, errors.New("boom"))
	if r.Outcome() != "failed(transform)" || !r.State.Terminal() {
		t.Fatalf("outcome = %s", r.Outcome())
	}
	if Filtered.Terminal() {
		t.Fatalf("filtered reported terminal")
	}
}
