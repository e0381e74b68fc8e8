package mssql

import (
	"context"
	"strings"

	"bucketetl/internal/ddl"
	"bucketetl/internal/schema"
	"bucketetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// dialect guards CREATE TABLE with OBJECT_ID; SQL Server has no
// CREATE TABLE IF NOT EXISTS.
var dialect = ddl.Dialect{
	Name:  "mssql",
	Quote: msIdent,
	Types: map[schema.Type]string{
		schema.Integer: "BIGINT",
		schema.Double:  "FLOAT",
		schema.String:  "NVARCHAR(MAX)",
		schema.Boolean: "BIT",
		schema.Date:    "DATE",
	},
	Create: func(fqn, stmt string) string {
		return "IF OBJECT_ID(N'" + strings.ReplaceAll(fqn, "'", "''") + "', N'U') IS NULL\n" + stmt
	},
}

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
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDialect("mssql", dialect)
}
