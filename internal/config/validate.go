// Package config provides configuration models and helpers for bucket
// pipelines.
//
// This file adds a linter for Pipeline values. It performs static checks over
// a decoded Pipeline and returns a list of issues (errors and warnings) that
// callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "filter.predicates[1].value"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	p, err := config.Load("configs/loans.yaml")
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateSchema(p)...)
	issues = append(issues, validateCSV(p)...)
	issues = append(issues, validateFilter(p)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

// validateSource validates Source configuration.
func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "s3":
		if s.S3.PageSize < 0 || s.S3.PageSize > 1000 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.s3.page_size",
				Message:  fmt.Sprintf("page_size=%d; must be between 0 (server default) and 1000", s.S3.PageSize),
			})
		}
		if s.S3.AccessKeyID != "" && s.S3.SecretAccessKey == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.s3.secret_access_key",
				Message:  "access_key_id is set without secret_access_key",
			})
		}
		if s.S3.AccessKeyID == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.s3.access_key_id",
				Message:  "no credentials configured; requests will be anonymous and cleanup will likely be denied",
			})
		}
	case "localfs":
		if strings.TrimSpace(s.Root) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.root",
				Message:  "localfs source requires a root directory",
			})
		}
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; want s3 or localfs", s.Kind),
		})
	}

	if strings.TrimSpace(s.Bucket) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.bucket",
			Message:  "source.bucket must not be empty",
		})
	}
	if s.Suffix == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.suffix",
			Message:  "no key suffix; every object in the bucket will be parsed as CSV",
		})
	}

	return issues
}

// validateSchema checks the contract resolves and that renames apply to it.
func validateSchema(p Pipeline) []Issue {
	var issues []Issue

	if len(p.Schema.Fields) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema.fields",
			Message:  "schema contract has no fields; every object would fail validation",
		})
	}
	reg, err := p.Registry()
	if err != nil {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema",
			Message:  err.Error(),
		})
	}

	if p.Transform.Precision < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "transform.precision",
			Message:  "precision must not be negative",
		})
	}
	for i, r := range p.Transform.Renames {
		if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transform.renames[%d]", i),
				Message:  "rename needs both from and to",
			})
			continue
		}
		if _, ok := reg.Expected().Lookup(r.From); !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("transform.renames[%d].from", i),
				Message:  fmt.Sprintf("column %q is not in the schema; the rename will never apply", r.From),
			})
		}
	}
	if _, err := p.OutputSchema(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "transform.renames",
			Message:  err.Error(),
		})
	}

	return issues
}

func validateCSV(p Pipeline) []Issue {
	if _, err := p.CSVOptions(); err != nil {
		return []Issue{{
			Severity: SeverityError,
			Path:     "csv.delimiter",
			Message:  err.Error(),
		}}
	}
	return nil
}

// validateFilter checks each predicate parses and refers to an output column.
func validateFilter(p Pipeline) []Issue {
	var issues []Issue

	if len(p.Filter.Predicates) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "filter.predicates",
			Message:  "no predicates configured; every loaded row will be written",
		})
	}
	if _, err := p.Conjunction(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "filter.predicates",
			Message:  err.Error(),
		})
		return issues
	}

	out, err := p.OutputSchema()
	if err != nil {
		return issues
	}
	conj, _ := p.Conjunction()
	for i, pr := range conj {
		if _, err := pr.Bind(out); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("filter.predicates[%d]", i),
				Message:  fmt.Sprintf("%s: %v", pr, err),
			})
		}
	}

	return issues
}

// validateStorage validates storage configuration and DB settings.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty (set it in the file or ETL_DB_DSN)",
		})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.table",
			Message:  "storage.table must not be empty",
		})
	}
	if s.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.batch_size",
			Message:  "batch_size must not be negative",
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.KeyTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.key_timeout",
			Message:  "key_timeout must not be negative",
		})
	}
	if r.MaxRows < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_rows",
			Message:  "max_rows must not be negative",
		})
	}
	if r.StageDir != "" && !r.LocalStage {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.stage_dir",
			Message:  "stage_dir is set but local_stage is false; objects are parsed directly from the stream",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires a URL (or PUSHGATEWAY_URL)",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires a DogStatsD address (or DOGSTATSD_ADDR)",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want none, pushgateway or datadog", m.Backend),
		})
	}

	return issues
}
