// Package config defines the configuration model of a bucket-to-table
// pipeline. Files are YAML or JSON (chosen by extension) and decode into
// Pipeline; environment variables then override the fields that usually carry
// credentials or per-deployment values.
//
// Example (trimmed):
//
//	job: loans
//	source:
//	  kind: s3
//	  bucket: loans-inbox
//	  suffix: .csv
//	schema:
//	  name: loans
//	  fields:
//	    - { name: id, type: integer }
//	storage:
//	  kind: postgres
//	  dsn: postgres://etl@db/warehouse
//	  table: public.loans
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pcsv "bucketetl/internal/parser/csv"
	"bucketetl/internal/schema"
	"bucketetl/internal/transformer/builtin"
)

// Pipeline is the top-level object of a pipeline file.
type Pipeline struct {
	// Job labels logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source Source `json:"source" yaml:"source"`

	// Schema is the contract every object must match after loading.
	Schema schema.Contract `json:"schema" yaml:"schema"`

	CSV       CSV       `json:"csv" yaml:"csv"`
	Transform Transform `json:"transform" yaml:"transform"`
	Filter    Filter    `json:"filter" yaml:"filter"`

	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
}

// Source selects the bucket to drain.
type Source struct {
	// Kind is "s3" or "localfs".
	Kind   string `json:"kind" yaml:"kind"`
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
	// Suffix keeps only keys ending with it, e.g. ".csv".
	Suffix string `json:"suffix" yaml:"suffix"`

	// Root is the directory holding buckets for the "localfs" kind.
	Root string `json:"root" yaml:"root"`

	S3 S3 `json:"s3" yaml:"s3"`
}

// S3 configures the S3 client. Credentials are normally supplied through
// ETL_S3_ACCESS_KEY_ID and ETL_S3_SECRET_ACCESS_KEY.
type S3 struct {
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	PathStyle       bool   `json:"path_style" yaml:"path_style"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
	PageSize        int32  `json:"page_size" yaml:"page_size"`
}

// CSV configures parsing.
type CSV struct {
	// Delimiter is a single character; empty means ",".
	Delimiter  string            `json:"delimiter" yaml:"delimiter"`
	TrimSpace  bool              `json:"trim_space" yaml:"trim_space"`
	LazyQuotes bool              `json:"lazy_quotes" yaml:"lazy_quotes"`
	HeaderMap  map[string]string `json:"header_map" yaml:"header_map"`
	// DateLayouts are Go time layouts tried in order.
	DateLayouts []string `json:"date_layouts" yaml:"date_layouts"`
	Truthy      []string `json:"truthy" yaml:"truthy"`
	Falsy       []string `json:"falsy" yaml:"falsy"`
	// Rewrites are raw byte replacements applied before parsing.
	Rewrites []pcsv.Rewrite `json:"rewrites" yaml:"rewrites"`
}

// Transform configures the transform chain.
type Transform struct {
	Precision     int              `json:"precision" yaml:"precision"`
	Renames       []builtin.Rename `json:"renames" yaml:"renames"`
	NormalizeText bool             `json:"normalize_text" yaml:"normalize_text"`
	DeDup         builtin.DeDup    `json:"dedup" yaml:"dedup"`
}

// Filter holds the predicates of the row filter. All must hold for a row to
// be kept.
type Filter struct {
	Predicates []Predicate `json:"predicates" yaml:"predicates"`
}

// Predicate is one comparison. Op is one of eq, ne, gt, ge, lt, le, in,
// not_in, not_null (or the symbolic forms).
type Predicate struct {
	Field string `json:"field" yaml:"field"`
	Op    string `json:"op" yaml:"op"`
	Value any    `json:"value" yaml:"value"`
}

// Storage selects the sink.
type Storage struct {
	// Kind is a registered storage kind: postgres, sqlite, mysql, mssql.
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
	// Table may be schema-qualified, e.g. "public.loans".
	Table           string `json:"table" yaml:"table"`
	AutoCreateTable bool   `json:"auto_create_table" yaml:"auto_create_table"`
	BatchSize       int    `json:"batch_size" yaml:"batch_size"`
}

// RuntimeConfig controls concurrency and staging.
type RuntimeConfig struct {
	Workers    int      `json:"workers" yaml:"workers"`
	KeyTimeout Duration `json:"key_timeout" yaml:"key_timeout"`
	// LocalStage copies each object to StageDir before parsing.
	LocalStage bool   `json:"local_stage" yaml:"local_stage"`
	StageDir   string `json:"stage_dir" yaml:"stage_dir"`
	// MaxRows bounds a single object's rows; 0 is unbounded.
	MaxRows int `json:"max_rows" yaml:"max_rows"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string   `json:"backend" yaml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string   `json:"namespace" yaml:"namespace"`
	Tags           []string `json:"tags" yaml:"tags"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML writes d as a duration string.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// UnmarshalYAML accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case nil:
		*d = 0
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	case float64:
		*d = Duration(x * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %v (%T)", v, v)
	}
	return nil
}

// Default returns the loans pipeline defaults. Load decodes files on top of
// it, so anything a file leaves out keeps these values.
func Default() Pipeline {
	return Pipeline{
		Job:    "bucketetl",
		Source: Source{Kind: "s3", Suffix: ".csv"},
		Transform: Transform{
			Precision: 2,
			Renames:   []builtin.Rename{{From: "desc", To: "description"}},
		},
		Filter: Filter{Predicates: []Predicate{
			{Field: "loan_status", Op: "ne", Value: "Charged Off"},
			{Field: "purpose", Op: "ne", Value: "other"},
			{Field: "last_fico_range_low", Op: "ge", Value: 700},
		}},
		Storage: Storage{Kind: "postgres", Table: "loans"},
		Runtime: RuntimeConfig{Workers: 1},
		Metrics: Metrics{Backend: "none"},
	}
}

// Load reads a pipeline file, decoding it over Default and applying
// environment overrides.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := ApplyEnv(&p, os.LookupEnv); err != nil {
		return Pipeline{}, fmt.Errorf("config %s: %w", path, err)
	}
	return p, nil
}

// Decode parses b over Default. ext selects the format: ".yaml", ".yml" or
// ".json". JSON documents are read by the YAML decoder, which accepts them
// and replaces (rather than merges into) default lists. Unknown fields are
// rejected.
func Decode(b []byte, ext string) (Pipeline, error) {
	p := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml", ".json":
	default:
		return Pipeline{}, fmt.Errorf("unsupported config extension %q", ext)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Pipeline{}, fmt.Errorf("decode %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	return p, nil
}
