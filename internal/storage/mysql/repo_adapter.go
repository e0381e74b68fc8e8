package mysql

import (
	"context"

	"bucketetl/internal/ddl"
	"bucketetl/internal/schema"
	"bucketetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var dialect = ddl.Dialect{
	Name:  "mysql",
	Quote: myIdent,
	Types: map[schema.Type]string{
		schema.Integer: "BIGINT",
		schema.Double:  "DOUBLE",
		schema.String:  "TEXT",
		schema.Boolean: "BOOLEAN",
		schema.Date:    "DATE",
	},
}

type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDialect("mysql", dialect)
}
