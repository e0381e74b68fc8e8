// Package parser defines the contract between the loader and format-specific
// decoders.
package parser

import (
	"context"
	"io"

	"bucketetl/internal/dataset"
	"bucketetl/internal/schema"
)

// Parser decodes one object into a dataset, typing the columns named in
// target with their declared types.
type Parser interface {
	Parse(ctx context.Context, key string, r io.Reader, target schema.Schema) (*dataset.Dataset, error)
}
