package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bucketetl/internal/config"
)

const loansCSV = "id,loan_amnt,loan_status,purpose,last_fico_range_low,desc\n" +
	"1,1000.456,Fully Paid,car,720,new car\n" +
	"2,2000.5,Charged Off,car,720,x\n" +
	"3,3000,Current,house,699,\n"

// fixture lays out a localfs bucket and a config pointing at a SQLite file.
func fixture(t *testing.T) (cfgPath, bucketDir, dbPath string) {
	t.Helper()
	root := t.TempDir()
	bucketDir = filepath.Join(root, "inbox")
	if err := os.MkdirAll(filepath.Join(bucketDir, "2024"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"2024/01.csv": loansCSV,
		"2024/02.csv": "id,loan_amnt\n1,2\n",
		"notes.txt":   "ignored",
	}
	for k, v := range files {
		if err := os.WriteFile(filepath.Join(bucketDir, filepath.FromSlash(k)), []byte(v), 0o644); err != nil {
			t.Fatalf("write %s: %v", k, err)
		}
	}
	dbPath = filepath.Join(root, "warehouse.db")
	cfg := `
job: loans-test
source:
  kind: localfs
  root: ` + root + `
  bucket: inbox
schema:
  name: loans
  fields:
    - { name: id, type: integer }
    - { name: loan_amnt, type: double }
    - { name: loan_status, type: string }
    - { name: purpose, type: string }
    - { name: last_fico_range_low, type: integer }
    - { name: desc, type: string }
storage:
  kind: sqlite
  dsn: ` + dbPath + `
  auto_create_table: true
`
	cfgPath = filepath.Join(root, "loans.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, bucketDir, dbPath
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCmd_LocalFSToSQLite(t *testing.T) {
	cfgPath, bucketDir, dbPath := fixture(t)

	if _, stderr, err := runCLI(t, "run", "--config", cfgPath, "--workers", "2"); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}

	if _, err := os.Stat(filepath.Join(bucketDir, "2024", "01.csv")); !os.IsNotExist(err) {
		t.Fatalf("processed object still present (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(bucketDir, "2024", "02.csv")); err != nil {
		t.Fatalf("failed object was removed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var id int64
	var amt float64
	var desc string
	if err := db.QueryRow(`SELECT "id", "loan_amnt", "description" FROM "loans"`).Scan(&id, &amt, &desc); err != nil {
		t.Fatalf("query: %v", err)
	}
	if id != 1 || amt != 1000.46 || desc != "new car" {
		t.Fatalf("row = %d %v %q", id, amt, desc)
	}
}

func TestRunCmd_FailOnError(t *testing.T) {
	cfgPath, _, _ := fixture(t)

	_, _, err := runCLI(t, "run", "--config", cfgPath, "--fail-on-error")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 keys failed") {
		t.Fatalf("err = %v, want key failure count", err)
	}
}

func TestRunCmd_MissingBucket(t *testing.T) {
	cfgPath, bucketDir, _ := fixture(t)
	if err := os.RemoveAll(bucketDir); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, _, err := runCLI(t, "run", "--config", cfgPath); err == nil {
		t.Fatalf("run against a missing bucket succeeded")
	}
}

func TestValidateCmd(t *testing.T) {
	cfgPath, _, _ := fixture(t)

	stdout, _, err := runCLI(t, "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stdout, "Configuration is valid") {
		t.Fatalf("stdout = %q", stdout)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("job: x\nsource: { kind: localfs }\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, stderr, err := runCLI(t, "validate", "--config", bad)
	if err == nil {
		t.Fatalf("invalid config accepted")
	}
	if !strings.Contains(stderr, "error: source.bucket") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestBackendsCmd(t *testing.T) {
	stdout, _, err := runCLI(t, "backends")
	if err != nil {
		t.Fatalf("backends: %v", err)
	}
	if got, want := strings.Fields(stdout), []string{"mssql", "mysql", "postgres", "sqlite"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("backends = %v, want %v", got, want)
	}
}

func TestProbeCmd(t *testing.T) {
	cfgPath, _, _ := fixture(t)

	stdout, _, err := runCLI(t, "probe", "--config", cfgPath, "--key", "2024/01.csv")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	for _, want := range []string{"schema:", "name: loans", "name: loan_amnt", "type: double", "name: desc"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout lacks %q:\n%s", want, stdout)
		}
	}

	if _, _, err := runCLI(t, "probe", "--config", cfgPath); err == nil {
		t.Fatalf("probe without --key accepted")
	}
}

func TestRunScheduled(t *testing.T) {
	cfgPath, bucketDir, _ := fixture(t)
	p, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	a, err := newApp(ctx, p, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if err := runScheduled(ctx, a, "@every 1s"); err != nil {
		t.Fatalf("runScheduled: %v", err)
	}
	if _, err := os.Stat(filepath.Join(bucketDir, "2024", "01.csv")); !os.IsNotExist(err) {
		t.Fatalf("scheduled batch did not run (err=%v)", err)
	}

	if err := runScheduled(context.Background(), a, "every minute"); err == nil {
		t.Fatalf("invalid cron spec accepted")
	}
}
