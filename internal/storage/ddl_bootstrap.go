package storage

import (
	"context"
	"fmt"
	"sync"

	"bucketetl/internal/ddl"
	"bucketetl/internal/schema"
)

var (
	ddlMu    sync.RWMutex
	dialects = map[string]ddl.Dialect{}
)

// RegisterDialect records the DDL dialect for a storage kind.
func RegisterDialect(kind string, d ddl.Dialect) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	dialects[kind] = d
}

// Dialect returns the DDL dialect registered for kind.
func Dialect(kind string) (ddl.Dialect, bool) {
	ddlMu.RLock()
	defer ddlMu.RUnlock()
	d, ok := dialects[kind]
	return d, ok
}

// CreateTableSQL renders the idempotent CREATE TABLE statement for table
// with columns following s.
func CreateTableSQL(kind, table string, s schema.Schema) (string, error) {
	d, ok := Dialect(kind)
	if !ok {
		return "", fmt.Errorf("no DDL dialect registered for storage.kind=%q", kind)
	}
	td, err := ddl.FromSchema(table, s, d)
	if err != nil {
		return "", err
	}
	return d.CreateTable(td)
}

// Execer runs a single statement. Every Repository is one, and so are the
// concrete backend repositories before they are wrapped for the registry.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// EnsureTable creates table on repo when it does not exist yet.
func EnsureTable(ctx context.Context, kind string, repo Execer, table string, s schema.Schema) error {
	stmt, err := CreateTableSQL(kind, table, s)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}
