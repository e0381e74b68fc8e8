package cleanup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bucketetl/internal/etlerr"
	"bucketetl/internal/objectstore"
	"bucketetl/internal/objectstore/memstore"
)

func TestCleanup_DeletesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := memstore.New(0)
	s.Put("loans", "a.csv", []byte("x"))
	c := New(s, "loans", true)

	for i := 0; i < 2; i++ {
		if err := c.Cleanup(context.Background(), "a.csv"); err != nil {
			t.Fatalf("Cleanup #%d: %v", i, err)
		}
	}
	if s.Has("loans", "a.csv") {
		t.Fatalf("object still present")
	}
}

func TestCleanup_NotFoundIsSuccess(t *testing.T) {
	t.Parallel()

	s := memstore.New(0)
	s.CreateBucket("loans")
	s.Inject(memstore.Faults{Delete: map[string]error{
		"gone.csv": fmt.Errorf("s3: %w", objectstore.ErrObjectNotFound),
	}})
	if err := New(s, "loans", false).Cleanup(context.Background(), "gone.csv"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestCleanup_FailureIsCleanupError(t *testing.T) {
	t.Parallel()

	denied := errors.New("access denied")
	s := memstore.New(0)
	s.Put("loans", "a.csv", []byte("x"))
	s.Inject(memstore.Faults{Delete: map[string]error{"a.csv": denied}})

	err := New(s, "loans", false).Cleanup(context.Background(), "a.csv")
	if !errors.Is(err, etlerr.CleanupError) || !errors.Is(err, denied) {
		t.Fatalf("err = %v, want CleanupError wrapping cause", err)
	}
	if !s.Has("loans", "a.csv") {
		t.Fatalf("object removed despite failure")
	}
}
