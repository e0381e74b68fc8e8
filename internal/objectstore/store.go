// Package objectstore defines the bucket/key storage contract the pipeline
// reads from and cleans up after, plus its sentinel errors.
package objectstore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrBucketNotFound is returned when the bucket does not exist or is not
	// accessible with the configured credentials.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrObjectNotFound is returned for a missing key.
	ErrObjectNotFound = errors.New("object not found")
)

// Page is one response of a paginated listing.
//
// KeyCount is what the store reported, which may disagree with len(Keys) on
// a damaged response. NextToken is only meaningful when Truncated is set.
type Page struct {
	Keys      []string
	KeyCount  int
	Truncated bool
	NextToken string
}

// Store is the object storage surface used by the pipeline. Implementations
// must be safe for concurrent use.
type Store interface {
	HeadBucket(ctx context.Context, bucket string) error
	// ListObjects returns the page that starts at token ("" for the first
	// page), restricted to keys with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix, token string) (Page, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// DeleteObject removes key. Deleting an absent key is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error
}
