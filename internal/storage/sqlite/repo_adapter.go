package sqlite

import (
	"context"

	"bucketetl/internal/ddl"
	"bucketetl/internal/schema"
	"bucketetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// dialect types booleans as 0/1 and dates as ISO-8601 text.
var dialect = ddl.Dialect{
	Name: "sqlite",
	Types: map[schema.Type]string{
		schema.Integer: "INTEGER",
		schema.Double:  "REAL",
		schema.String:  "TEXT",
		schema.Boolean: "INTEGER",
		schema.Date:    "TEXT",
	},
}

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDialect("sqlite", dialect)
}
