// Package csv parses one delimited text object into a typed, in-memory
// dataset. The header row names the columns; every data row must have the
// header's width and every cell must parse as its column type, otherwise the
// whole object is rejected. Large inputs are read record by record, and the
// only buffering is the bounded row batch itself.
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/schema"
)

// Rewrite is a literal byte replacement applied to the raw stream before
// CSV decoding, for repairing known-bad sequences in upstream exports.
type Rewrite struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Options configures the parser. All fields are optional.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// LazyQuotes relaxes quote handling in encoding/csv.
	LazyQuotes bool

	// HeaderMap maps raw header cells to column names ahead of
	// canonicalization.
	HeaderMap map[string]string

	// MaxRows bounds the number of data rows held in memory; 0 is unbounded.
	MaxRows int

	// Cells controls date layouts and boolean vocabulary.
	Cells dataset.ParseOptions

	// Rewrites are applied in order on the raw byte stream.
	Rewrites []Rewrite
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs and for concurrent use.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// streamingRewriter is an io.Reader that performs a streaming, rolling
// find/replace: it replaces all occurrences of pat with repl without buffering
// the entire stream. It retains the last len(pat)-1 bytes of each block as
// carry so matches spanning chunk boundaries are still found.
type streamingRewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	carry []byte
	chunk []byte
	buf   bytes.Buffer
	eof   bool
}

func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	return &streamingRewriter{
		br:    bufio.NewReaderSize(r, 64*1024),
		pat:   pat,
		repl:  repl,
		carry: make([]byte, 0, max(len(pat)-1, 0)),
		chunk: make([]byte, 64*1024),
	}
}

func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for {
		if sr.buf.Len() > 0 {
			return sr.buf.Read(p)
		}
		if sr.eof {
			return 0, io.EOF
		}

		n, rerr := sr.br.Read(sr.chunk)
		if n > 0 {
			block := append(append(make([]byte, 0, len(sr.carry)+n), sr.carry...), sr.chunk[:n]...)
			if len(sr.pat) > 0 && !bytes.Equal(sr.pat, sr.repl) {
				block = bytes.ReplaceAll(block, sr.pat, sr.repl)
			}
			k := max(len(sr.pat)-1, 0)
			if len(block) > k {
				sr.buf.Write(block[:len(block)-k])
				sr.carry = append(sr.carry[:0], block[len(block)-k:]...)
			} else {
				sr.carry = append(sr.carry[:0], block...)
			}
		}
		if rerr == io.EOF {
			sr.buf.Write(sr.carry)
			sr.carry = sr.carry[:0]
			sr.eof = true
		} else if rerr != nil {
			return 0, rerr
		}
	}
}

// Parse reads one object into a dataset keyed by key.
//
// Columns named in target take their declared type; other columns get the
// narrowest type that parses all of their non-empty cells, so the validator
// can report them as extra columns. Any row of the wrong width or with an
// unparsable cell aborts the parse with a LoadError wrapping MalformedRow; no
// partial dataset is returned.
func (p *Parser) Parse(ctx context.Context, key string, r io.Reader, target schema.Schema) (*dataset.Dataset, error) {
	for _, rw := range p.opt.Rewrites {
		r = newStreamingRewriter(r, []byte(rw.From), []byte(rw.To))
	}

	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.LazyQuotes = p.opt.LazyQuotes
	// Width is enforced below so the error names the line and both counts.
	cr.FieldsPerRecord = -1

	h, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, etlerr.Newf(etlerr.LoadError, key, "empty object: no header row")
		}
		return nil, etlerr.New(etlerr.LoadError, key, fmt.Errorf("read csv header: %w", err))
	}
	headers, err := normalizeHeaders(h, p.opt.HeaderMap)
	if err != nil {
		return nil, etlerr.New(etlerr.LoadError, key, err)
	}

	type rawRow struct {
		line  int
		cells []string
	}
	var raw []rawRow
	for {
		if len(raw)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, etlerr.New(etlerr.LoadError, key, err)
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, etlerr.Malformed(key, pe.StartLine, "%v", pe.Err)
			}
			return nil, etlerr.New(etlerr.LoadError, key, fmt.Errorf("read csv: %w", err))
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != len(headers) {
			return nil, etlerr.Malformed(key, line, "expected %d cells, got %d", len(headers), len(rec))
		}
		if p.opt.MaxRows > 0 && len(raw) >= p.opt.MaxRows {
			return nil, etlerr.Newf(etlerr.LoadError, key, "more than max_rows=%d data rows", p.opt.MaxRows)
		}
		if p.opt.TrimSpace {
			for i := range rec {
				rec[i] = strings.TrimSpace(rec[i])
			}
		}
		raw = append(raw, rawRow{line: line, cells: rec})
	}

	cols := make([]schema.Column, len(headers))
	for i, name := range headers {
		if t, ok := target.Lookup(name); ok {
			cols[i] = schema.Column{Name: name, Type: t}
			continue
		}
		samples := make([]string, len(raw))
		for j, rr := range raw {
			samples[j] = rr.cells[i]
		}
		cols[i] = schema.Column{Name: name, Type: dataset.Infer(samples, p.opt.Cells)}
	}
	observed, err := schema.New(cols...)
	if err != nil {
		return nil, etlerr.New(etlerr.LoadError, key, err)
	}

	ds := dataset.New(key, observed)
	cells := make([]dataset.Cell, len(cols))
	for _, rr := range raw {
		for i, v := range rr.cells {
			c, err := dataset.Parse(v, cols[i].Type, p.opt.Cells)
			if err != nil {
				return nil, etlerr.Malformed(key, rr.line, "column %s: %v", cols[i].Name, err)
			}
			cells[i] = c
		}
		if err := ds.Append(rr.line, cells...); err != nil {
			return nil, etlerr.Malformed(key, rr.line, "%v", err)
		}
	}
	return ds, nil
}
