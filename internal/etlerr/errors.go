// Package etlerr defines the error taxonomy shared by every pipeline stage.
//
// Each stage failure is an *Error carrying a Kind, the object key being
// processed, and the underlying cause. Kinds are comparable sentinels, so
// callers branch with errors.Is:
//
//	if errors.Is(err, etlerr.SchemaMismatch) { ... }
//
// and recover the details with errors.As:
//
//	var e *etlerr.Error
//	if errors.As(err, &e) { log.Printf("key=%s kind=%s", e.Key, e.Kind) }
package etlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	SourceUnavailable  Kind = "source_unavailable"
	SourceListingError Kind = "source_listing_error"
	LoadError          Kind = "load_error"
	MalformedRow       Kind = "malformed_row"
	SchemaMismatch     Kind = "schema_mismatch"
	TransformError     Kind = "transform_error"
	FilterError        Kind = "filter_error"
	SinkError          Kind = "sink_error"
	CleanupError       Kind = "cleanup_error"
)

// Error implements the error interface so a bare Kind can be used as an
// errors.Is target.
func (k Kind) Error() string { return string(k) }

// Error is a classified stage failure.
type Error struct {
	Kind Kind
	// Key is the object key being processed; empty for bucket-level errors.
	Key string
	// Line is the 1-based source line for row-level errors (MalformedRow).
	Line int
	// Written is the number of rows already appended when a SinkError occurred.
	Written int64
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Key != "" {
		msg += " key=" + e.Key
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" line=%d", e.Line)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an *Error of kind k wrapping cause.
func New(k Kind, key string, cause error) *Error {
	return &Error{Kind: k, Key: key, Err: cause}
}

// Newf returns an *Error of kind k with a formatted message and no cause.
func Newf(k Kind, key, format string, a ...any) *Error {
	return &Error{Kind: k, Key: key, Msg: fmt.Sprintf(format, a...)}
}

// Malformed builds a LoadError wrapping a MalformedRow for the given line,
// so both kinds match with errors.Is.
func Malformed(key string, line int, format string, a ...any) *Error {
	row := &Error{Kind: MalformedRow, Line: line, Msg: fmt.Sprintf(format, a...)}
	return &Error{Kind: LoadError, Key: key, Err: row}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" when
// err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithKey returns err with its key set when err is an *Error that has none.
func WithKey(err error, key string) error {
	var e *Error
	if errors.As(err, &e) && e.Key == "" {
		e.Key = key
	}
	return err
}
