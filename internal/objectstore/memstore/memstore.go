// Package memstore is an in-memory objectstore.Store with fault injection,
// used for tests and local dry runs.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"bucketetl/internal/objectstore"
)

// DefaultPageSize mirrors the S3 listing default.
const DefaultPageSize = 1000

// Faults lets tests make individual calls fail or corrupt listing pages.
type Faults struct {
	Head   error
	List   func(token string) error
	Get    map[string]error
	Delete map[string]error
	// Page, when set, may rewrite each page before it is returned.
	Page func(p *objectstore.Page)
}

// Store holds buckets of objects in memory.
type Store struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte
	pageSize int
	faults   Faults

	listCalls int
}

// New returns an empty store; pageSize <= 0 selects DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{buckets: map[string]map[string][]byte{}, pageSize: pageSize}
}

// CreateBucket adds an empty bucket (no-op if it exists).
func (s *Store) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = map[string][]byte{}
	}
}

// Put stores an object, creating the bucket if needed.
func (s *Store) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = map[string][]byte{}
		s.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), data...)
}

// Has reports whether key exists in bucket.
func (s *Store) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucket][key]
	return ok
}

// Keys returns the sorted keys of bucket.
func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.buckets[bucket], "")
}

// Inject replaces the active faults.
func (s *Store) Inject(f Faults) {
	s.mu.Lock()
	s.faults = f
	s.mu.Unlock()
}

// ListCalls returns how many ListObjects calls were served.
func (s *Store) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Store) HeadBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.Head != nil {
		return s.faults.Head
	}
	if _, ok := s.buckets[bucket]; !ok {
		return fmt.Errorf("memstore: %s: %w", bucket, objectstore.ErrBucketNotFound)
	}
	return nil
}

// ListObjects pages over keys in lexicographic order. A continuation token is
// the last key of the previous page and the next page starts after it, so
// deleting already listed keys never shifts later pages.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix, token string) (objectstore.Page, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.faults.List != nil {
		if err := s.faults.List(token); err != nil {
			return objectstore.Page{}, err
		}
	}
	b, ok := s.buckets[bucket]
	if !ok {
		return objectstore.Page{}, fmt.Errorf("memstore: %s: %w", bucket, objectstore.ErrBucketNotFound)
	}
	keys := sortedKeys(b, prefix)
	start := sort.SearchStrings(keys, token)
	if start < len(keys) && token != "" && keys[start] == token {
		start++
	}
	keys = keys[start:]

	p := objectstore.Page{}
	if len(keys) > s.pageSize {
		keys = keys[:s.pageSize]
		p.Truncated = true
		p.NextToken = keys[len(keys)-1]
	}
	p.Keys, p.KeyCount = keys, len(keys)
	if s.faults.Page != nil {
		s.faults.Page(&p)
	}
	return p, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Get[key]; err != nil {
		return nil, err
	}
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("memstore: %s: %w", bucket, objectstore.ErrBucketNotFound)
	}
	data, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("memstore: %s/%s: %w", bucket, key, objectstore.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Delete[key]; err != nil {
		return err
	}
	b, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("memstore: %s: %w", bucket, objectstore.ErrBucketNotFound)
	}
	delete(b, key)
	return nil
}

func sortedKeys(b map[string][]byte, prefix string) []string {
	out := make([]string, 0, len(b))
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

var _ objectstore.Store = (*Store)(nil)
