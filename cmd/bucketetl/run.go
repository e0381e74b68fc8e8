package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"bucketetl/internal/config"
)

type runFlags struct {
	cfgPath        string
	workers        int
	localStage     bool
	schedule       string
	metricsBackend string
	failOnError    bool
	verbose        bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the bucket into the table once, or on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(f.cfgPath)
			if err != nil {
				return err
			}
			f.apply(cmd, &p)
			if err := reportIssues(cmd, f.cfgPath, p); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			release := setupMetrics(p.Metrics, p.Job, f.verbose)
			defer release()

			a, err := newApp(ctx, p, f.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			if f.schedule != "" {
				return runScheduled(ctx, a, f.schedule)
			}
			start := time.Now()
			rep, err := a.runOnce(ctx)
			if err != nil {
				return err
			}
			if f.verbose {
				log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
			}
			if f.failOnError && rep.Failed() > 0 {
				return fmt.Errorf("%d of %d keys failed", rep.Failed(), len(rep.Runs))
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.cfgPath, "config", "configs/loans.yaml", "pipeline config path (.yaml or .json)")
	fl.IntVar(&f.workers, "workers", 0, "keys processed concurrently (overrides runtime.workers)")
	fl.BoolVar(&f.localStage, "local-stage", false, "copy each object to local disk before parsing")
	fl.StringVar(&f.schedule, "schedule", "", "cron spec; run repeatedly until interrupted (e.g. \"*/15 * * * *\")")
	fl.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides metrics.backend)")
	fl.BoolVar(&f.failOnError, "fail-on-error", false, "exit non-zero when any key fails")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose logs")
	return cmd
}

// apply lets explicitly set flags override the config file.
func (f runFlags) apply(cmd *cobra.Command, p *config.Pipeline) {
	if cmd.Flags().Changed("workers") {
		p.Runtime.Workers = f.workers
	}
	if f.localStage {
		p.Runtime.LocalStage = true
	}
	if cmd.Flags().Changed("metrics-backend") {
		p.Metrics.Backend = f.metricsBackend
	}
}

// runScheduled runs a batch on every tick of spec until ctx is done. A tick
// that arrives while the previous batch is still running is skipped.
func runScheduled(ctx context.Context, a *app, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := a.runOnce(ctx); err != nil {
			log.Printf("schedule: batch failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	log.Printf("schedule: spec=%q job=%s", spec, a.pl.Job)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("schedule: stopped")
	return nil
}
