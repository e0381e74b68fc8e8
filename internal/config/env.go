package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides p with the ETL_* environment variables that are set.
// Malformed numbers, booleans and durations are errors.
func ApplyEnv(p *Pipeline, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not an integer", key, v))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	str("ETL_JOB", &p.Job)

	str("ETL_SOURCE_KIND", &p.Source.Kind)
	str("ETL_S3_BUCKET", &p.Source.Bucket)
	str("ETL_S3_PREFIX", &p.Source.Prefix)
	str("ETL_S3_REGION", &p.Source.S3.Region)
	str("ETL_S3_ENDPOINT", &p.Source.S3.Endpoint)
	str("ETL_S3_ACCESS_KEY_ID", &p.Source.S3.AccessKeyID)
	str("ETL_S3_SECRET_ACCESS_KEY", &p.Source.S3.SecretAccessKey)
	str("ETL_S3_SESSION_TOKEN", &p.Source.S3.SessionToken)
	boolean("ETL_S3_PATH_STYLE", &p.Source.S3.PathStyle)
	if v, ok := lookup("ETL_S3_PAGE_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ETL_S3_PAGE_SIZE=%q is not an integer", v))
		} else {
			p.Source.S3.PageSize = int32(n)
		}
	}

	str("ETL_DB_KIND", &p.Storage.Kind)
	str("ETL_DB_DSN", &p.Storage.DSN)
	str("ETL_DB_TABLE", &p.Storage.Table)
	integer("ETL_BATCH_SIZE", &p.Storage.BatchSize)

	integer("ETL_WORKERS", &p.Runtime.Workers)
	integer("ETL_MAX_ROWS", &p.Runtime.MaxRows)
	str("ETL_STAGE_DIR", &p.Runtime.StageDir)
	boolean("ETL_LOCAL_STAGE", &p.Runtime.LocalStage)
	if v, ok := lookup("ETL_KEY_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("ETL_KEY_TIMEOUT=%q is not a duration", v))
		} else {
			p.Runtime.KeyTimeout = Duration(d)
		}
	}

	str("METRICS_BACKEND", &p.Metrics.Backend)
	str("PUSHGATEWAY_URL", &p.Metrics.PushgatewayURL)
	str("DOGSTATSD_ADDR", &p.Metrics.DatadogAddr)

	if len(errs) > 0 {
		return fmt.Errorf("environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
