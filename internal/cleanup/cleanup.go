// Package cleanup deletes a source object once its rows are in the sink.
package cleanup

import (
	"context"
	"errors"
	"log"

	"bucketetl/internal/etlerr"
	"bucketetl/internal/objectstore"
)

// Cleaner deletes keys from one bucket.
type Cleaner struct {
	store   objectstore.Store
	bucket  string
	verbose bool
}

// New returns a Cleaner for bucket.
func New(store objectstore.Store, bucket string, verbose bool) *Cleaner {
	return &Cleaner{store: store, bucket: bucket, verbose: verbose}
}

// Cleanup deletes key. A key that is already gone counts as cleaned; any
// other failure is a CleanupError.
func (c *Cleaner) Cleanup(ctx context.Context, key string) error {
	err := c.store.DeleteObject(ctx, c.bucket, key)
	if err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		return etlerr.New(etlerr.CleanupError, key, err)
	}
	if c.verbose {
		log.Printf("cleanup: bucket=%s key=%s deleted", c.bucket, key)
	}
	return nil
}
