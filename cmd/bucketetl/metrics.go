package main

import (
	"log"

	"bucketetl/internal/config"
	"bucketetl/internal/metrics"
	"bucketetl/internal/metrics/datadog"
	"bucketetl/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns a func that
// releases it. An unusable backend leaves metrics disabled.
func setupMetrics(m config.Metrics, job string, verbose bool) func() {
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(job, m.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", m.PushgatewayURL, m.Backend, job)
		metrics.SetBackend(b)
		return metrics.Reset

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.Namespace,
			GlobalTags: append([]string{"job:" + job}, m.Tags...),
		})
		if err != nil {
			log.Printf("metrics: failed to init dogstatsd backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", m.DatadogAddr, m.Backend, job)
		metrics.SetBackend(b)
		return func() {
			metrics.Reset()
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", m.Backend)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", m.Backend)
	}
	return func() {}
}
