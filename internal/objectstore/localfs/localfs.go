// Package localfs implements objectstore.Store on the local filesystem.
//
// Each bucket is a directory under Root and keys are slash-separated paths
// relative to it. Listing is lexicographic; the continuation token is the last
// key of the previous page.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bucketetl/internal/objectstore"
)

// DefaultPageSize is used when Store.PageSize is zero.
const DefaultPageSize = 1000

// Store is a directory-backed object store. It is safe for concurrent use as
// long as the directory tree is not modified by other processes mid-listing.
type Store struct {
	Root     string
	PageSize int
}

// New returns a Store rooted at root.
func New(root string) *Store { return &Store{Root: root} }

func (s *Store) bucketDir(bucket string) (string, error) {
	if bucket == "" || !filepath.IsLocal(bucket) {
		return "", fmt.Errorf("localfs: invalid bucket name %q", bucket)
	}
	return filepath.Join(s.Root, bucket), nil
}

func (s *Store) objectPath(bucket, key string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("localfs: invalid key %q", key)
	}
	return filepath.Join(dir, rel), nil
}

func (s *Store) HeadBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("localfs: %s: %w", dir, objectstore.ErrBucketNotFound)
		}
		return fmt.Errorf("localfs: stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("localfs: %s is not a directory: %w", dir, objectstore.ErrBucketNotFound)
	}
	return nil
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix, token string) (objectstore.Page, error) {
	if err := s.HeadBucket(ctx, bucket); err != nil {
		return objectstore.Page{}, err
	}
	dir, _ := s.bucketDir(bucket)

	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && key > token {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return objectstore.Page{}, fmt.Errorf("localfs: list %s: %w", dir, err)
	}
	sort.Strings(keys)

	size := s.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	p := objectstore.Page{}
	if len(keys) > size {
		keys = keys[:size]
		p.Truncated = true
		p.NextToken = keys[len(keys)-1]
	}
	p.Keys, p.KeyCount = keys, len(keys)
	return p, nil
}

// GetObject opens the file backing key. A canceled context is reported
// without touching the filesystem.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("localfs: open %s: %w", path, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("localfs: open %s: %w", path, err)
	}
	return f, nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("localfs: remove %s: %w", path, err)
	}
	return nil
}

var _ objectstore.Store = (*Store)(nil)
