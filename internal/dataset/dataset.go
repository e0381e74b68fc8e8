// Package dataset is the bounded, in-memory tabular batch that flows through
// the pipeline: an ordered list of rows sharing one schema, each row a
// sequence of typed cells addressable by column name.
//
// A Dataset is owned by a single pipeline run and is not safe for concurrent
// mutation.
package dataset

import (
	"fmt"

	"bucketetl/internal/schema"
)

// layout is shared by a dataset and all its rows so a column rename is
// visible through every Row without touching the cells.
type layout struct {
	schema schema.Schema
	index  map[string]int
}

func newLayout(s schema.Schema) *layout {
	idx := make(map[string]int, s.Len())
	for i, c := range s.Columns {
		idx[c.Name] = i
	}
	return &layout{schema: s, index: idx}
}

// Row is one record. Line is the 1-based source line it was parsed from
// (0 when built in memory).
type Row struct {
	Line  int
	cells []Cell
	l     *layout
}

// Get returns the named cell.
func (r Row) Get(name string) (Cell, bool) {
	i, ok := r.l.index[name]
	if !ok {
		return Cell{}, false
	}
	return r.cells[i], true
}

// Cells returns the row's cells in schema order. The slice must not be
// modified.
func (r Row) Cells() []Cell { return r.cells }

// Len returns the number of cells.
func (r Row) Len() int { return len(r.cells) }

// Dataset is an ordered sequence of rows with one schema.
type Dataset struct {
	// Key is the object key the dataset was loaded from.
	Key string
	// Checksum is the xxh3 hash of the raw source bytes (0 when unknown).
	Checksum uint64

	l    *layout
	rows []Row
}

// New returns an empty dataset with schema s.
func New(key string, s schema.Schema) *Dataset {
	return &Dataset{Key: key, l: newLayout(s)}
}

// Schema returns the current schema.
func (d *Dataset) Schema() schema.Schema { return d.l.schema }

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Rows returns the rows in order. The slice must not be modified.
func (d *Dataset) Rows() []Row { return d.rows }

// Row returns row i.
func (d *Dataset) Row(i int) Row { return d.rows[i] }

// Append adds a row. The cells must match the schema width and column types
// (NULL cells included).
func (d *Dataset) Append(line int, cells ...Cell) error {
	cols := d.l.schema.Columns
	if len(cells) != len(cols) {
		return fmt.Errorf("row has %d cells, schema has %d columns", len(cells), len(cols))
	}
	for i, c := range cells {
		if c.Type != cols[i].Type {
			return fmt.Errorf("column %q: cell type %s, want %s", cols[i].Name, c.Type, cols[i].Type)
		}
	}
	own := make([]Cell, len(cells))
	copy(own, cells)
	d.rows = append(d.rows, Row{Line: line, cells: own, l: d.l})
	return nil
}

// MustAppend is Append for tests and static fixtures.
func (d *Dataset) MustAppend(line int, cells ...Cell) {
	if err := d.Append(line, cells...); err != nil {
		panic(err)
	}
}

// Rename renames a column in place. It reports whether the column existed;
// renaming onto an existing column fails.
func (d *Dataset) Rename(from, to string) (bool, error) {
	ns, ok, err := d.l.schema.Rename(from, to)
	if err != nil || !ok {
		return false, err
	}
	fresh := newLayout(ns)
	d.l.schema, d.l.index = fresh.schema, fresh.index
	return true, nil
}

// MapColumn replaces every cell of the named column with fn(cell). fn must
// preserve the cell type.
func (d *Dataset) MapColumn(name string, fn func(Cell) (Cell, error)) error {
	i, ok := d.l.index[name]
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	want := d.l.schema.Columns[i].Type
	for r := range d.rows {
		c, err := fn(d.rows[r].cells[i])
		if err != nil {
			return fmt.Errorf("column %q line %d: %w", name, d.rows[r].Line, err)
		}
		if c.Type != want {
			return fmt.Errorf("column %q line %d: mapped cell type %s, want %s", name, d.rows[r].Line, c.Type, want)
		}
		d.rows[r].cells[i] = c
	}
	return nil
}

// Retain keeps the rows for which keep returns true, preserving order. On
// error the dataset is left unchanged.
func (d *Dataset) Retain(keep func(Row) (bool, error)) error {
	out := make([]Row, 0, len(d.rows))
	for _, r := range d.rows {
		ok, err := keep(r)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, r)
		}
	}
	d.rows = out
	return nil
}

// Select returns a new dataset holding only the named columns, in the given
// order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]schema.Column, len(names))
	pos := make([]int, len(names))
	for i, n := range names {
		j, ok := d.l.index[n]
		if !ok {
			return nil, fmt.Errorf("select: unknown column %q", n)
		}
		cols[i] = d.l.schema.Columns[j]
		pos[i] = j
	}
	s, err := schema.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out := New(d.Key, s)
	out.Checksum = d.Checksum
	out.rows = make([]Row, len(d.rows))
	for r, row := range d.rows {
		cells := make([]Cell, len(pos))
		for i, j := range pos {
			cells[i] = row.cells[j]
		}
		out.rows[r] = Row{Line: row.Line, cells: cells, l: out.l}
	}
	return out, nil
}

// Values renders rows as positional values for the named columns, the shape
// storage backends accept for bulk copy.
func (d *Dataset) Values(columns []string) ([][]any, error) {
	pos := make([]int, len(columns))
	for i, n := range columns {
		j, ok := d.l.index[n]
		if !ok {
			return nil, fmt.Errorf("values: unknown column %q", n)
		}
		pos[i] = j
	}
	out := make([][]any, len(d.rows))
	for r, row := range d.rows {
		vals := make([]any, len(pos))
		for i, j := range pos {
			vals[i] = row.cells[j].Value()
		}
		out[r] = vals
	}
	return out, nil
}
