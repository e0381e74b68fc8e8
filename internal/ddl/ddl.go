// Package ddl renders CREATE TABLE statements for the sink's destination
// table from a dataset schema.
//
// The model is backend-agnostic. Each storage backend supplies a Dialect with
// its identifier quoting, its type map and the idempotent create form it
// supports.
package ddl

import (
	"fmt"
	"strings"

	"bucketetl/internal/schema"
)

// ColumnDef describes a single destination column.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef is a table name (optionally schema-qualified, "schema.table") and
// its ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect captures the per-backend parts of DDL rendering.
type Dialect struct {
	Name  string
	Quote func(ident string) string
	Types map[schema.Type]string
	// Create wraps a rendered "CREATE TABLE <name> (...)" so it becomes a
	// no-op when the table exists. Nil means prefixing IF NOT EXISTS.
	Create func(fqn, stmt string) string
}

// DoubleQuote quotes an identifier ANSI style ("name"), escaping embedded
// quotes.
func DoubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// FromSchema builds a table definition whose columns follow s in order.
// Every column is nullable: empty source cells are written as NULL.
func FromSchema(table string, s schema.Schema, d Dialect) (TableDef, error) {
	if strings.TrimSpace(table) == "" {
		return TableDef{}, fmt.Errorf("%s ddl: table name must not be empty", d.Name)
	}
	defs := make([]ColumnDef, 0, s.Len())
	for _, c := range s.Columns {
		typ, ok := d.Types[c.Type]
		if !ok {
			return TableDef{}, fmt.Errorf("%s ddl: no SQL type for column %s of type %s", d.Name, c.Name, c.Type)
		}
		defs = append(defs, ColumnDef{Name: c.Name, SQLType: typ, Nullable: true})
	}
	return TableDef{FQN: table, Columns: defs}, nil
}

// QuoteFQN quotes each dot-separated segment of a table name.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, d.quote(p))
		}
	}
	return strings.Join(out, ".")
}

func (d Dialect) quote(id string) string {
	if d.Quote == nil {
		return DoubleQuote(id)
	}
	return d.Quote(id)
}

// CreateTable renders an idempotent CREATE TABLE statement:
//
//	CREATE TABLE IF NOT EXISTS "loans" (
//	  "id" BIGINT,
//	  "purpose" TEXT NOT NULL
//	);
func (d Dialect) CreateTable(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name, name)
		}
		col := d.quote(name) + " " + typ
		if !c.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}

	quoted := d.QuoteFQN(fqn)
	body := fmt.Sprintf("%s (\n  %s\n)", quoted, strings.Join(cols, ",\n  "))
	if d.Create != nil {
		return d.Create(fqn, "CREATE TABLE "+body), nil
	}
	return "CREATE TABLE IF NOT EXISTS " + body, nil
}
