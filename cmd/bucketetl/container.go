package main

import (
	"context"
	"fmt"
	"log"

	"bucketetl/internal/cleanup"
	"bucketetl/internal/config"
	"bucketetl/internal/loader"
	"bucketetl/internal/objectstore"
	"bucketetl/internal/objectstore/localfs"
	"bucketetl/internal/objectstore/s3store"
	pcsv "bucketetl/internal/parser/csv"
	"bucketetl/internal/pipeline"
	"bucketetl/internal/sink"
	"bucketetl/internal/source"
	"bucketetl/internal/storage"
	"bucketetl/internal/transformer"
	"bucketetl/internal/validator"
)

// app holds what outlives a single batch: the store, the repository and the
// stage chain. Each batch gets a fresh enumerator.
type app struct {
	pl      config.Pipeline
	store   objectstore.Store
	repo    storage.Repository
	stages  []pipeline.Stage
	verbose bool
}

// newApp wires the pipeline described by pl.
func newApp(ctx context.Context, pl config.Pipeline, verbose bool) (*app, error) {
	store, err := openStore(pl.Source)
	if err != nil {
		return nil, err
	}

	reg, err := pl.Registry()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	csvOpt, err := pl.CSVOptions()
	if err != nil {
		return nil, err
	}
	conj, err := pl.Conjunction()
	if err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, storage.Config{
		Kind:  pl.Storage.Kind,
		DSN:   pl.Storage.DSN,
		Table: pl.Storage.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	bucket := pl.Source.Bucket
	stages := pipeline.DefaultStages(pipeline.Components{
		Loader: loader.New(store, pcsv.NewParser(csvOpt), loader.Options{
			Bucket:   bucket,
			Stage:    pl.Runtime.LocalStage,
			StageDir: pl.Runtime.StageDir,
			Verbose:  verbose,
		}),
		Target:      reg.Expected(),
		Validator:   validator.New(reg),
		Transformer: transformer.New(pl.TransformOptions()),
		Filter:      conj,
		Sink: sink.New(repo, sink.Options{
			Kind:            pl.Storage.Kind,
			Table:           pl.Storage.Table,
			BatchSize:       pl.Storage.BatchSize,
			AutoCreateTable: pl.Storage.AutoCreateTable,
			Verbose:         verbose,
		}),
		Cleaner: cleanup.New(store, bucket, verbose),
	})

	if verbose {
		log.Printf("bucketetl: job=%s source=%s bucket=%s storage=%s table=%s workers=%d local_stage=%t",
			pl.Job, pl.Source.Kind, bucket, pl.Storage.Kind, pl.Storage.Table, pl.Runtime.Workers, pl.Runtime.LocalStage)
	}
	return &app{pl: pl, store: store, repo: repo, stages: stages, verbose: verbose}, nil
}

func openStore(s config.Source) (objectstore.Store, error) {
	switch s.Kind {
	case "s3":
		return s3store.New(s3store.Options{
			Region:          s.S3.Region,
			AccessKeyID:     s.S3.AccessKeyID,
			SecretAccessKey: s.S3.SecretAccessKey,
			SessionToken:    s.S3.SessionToken,
			Endpoint:        s.S3.Endpoint,
			PathStyle:       s.S3.PathStyle,
			PageSize:        s.S3.PageSize,
		}), nil
	case "localfs":
		return &localfs.Store{Root: s.Root, PageSize: int(s.S3.PageSize)}, nil
	}
	return nil, fmt.Errorf("unsupported source.kind=%s", s.Kind)
}

// runOnce drains the bucket once.
func (a *app) runOnce(ctx context.Context) (pipeline.Report, error) {
	src := source.New(a.store, source.Options{
		Bucket:  a.pl.Source.Bucket,
		Prefix:  a.pl.Source.Prefix,
		Suffix:  a.pl.Source.Suffix,
		Verbose: a.verbose,
	})
	ctl, err := pipeline.New(pipeline.Config{
		Job:        a.pl.Job,
		Workers:    a.pl.Runtime.Workers,
		KeyTimeout: a.pl.Runtime.KeyTimeout.Std(),
		Verbose:    a.verbose,
	}, src, a.stages)
	if err != nil {
		return pipeline.Report{}, err
	}
	return ctl.Run(ctx)
}

func (a *app) Close() { a.repo.Close() }
