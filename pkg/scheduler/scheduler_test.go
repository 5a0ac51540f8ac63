package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestSubmitRunsFunc(t *testing.T) {
	s := New("query", 0)
	var ran int32

	err := s.Submit(context.Background(), func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Submit did not run the submitted function")
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	s := New("query", 0)
	wantErr := errors.New("boom")

	err := s.Submit(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Submit error = %v, want %v", err, wantErr)
	}
}

func TestSubmitTagsContextForAssertOnQueryScheduler(t *testing.T) {
	s := New("query", 0)

	err := s.Submit(context.Background(), func(ctx context.Context) error {
		return AssertOnQueryScheduler(ctx, "query")
	})
	if err != nil {
		t.Errorf("AssertOnQueryScheduler failed inside Submit: %v", err)
	}
}

func TestAssertOnQuerySchedulerFailsForUntaggedContext(t *testing.T) {
	if err := AssertOnQueryScheduler(context.Background(), "query"); err == nil {
		t.Fatal("expected AssertOnQueryScheduler to fail on an untagged context")
	}
}

func TestAssertOnQuerySchedulerFailsForWrongPool(t *testing.T) {
	s := New("io", 0)

	err := s.Submit(context.Background(), func(ctx context.Context) error {
		return AssertOnQueryScheduler(ctx, "query")
	})
	if err == nil {
		t.Fatal("expected AssertOnQueryScheduler to fail when tagged by a different pool")
	}
	if !errors.Is(err, ErrNotOnQueryScheduler) {
		t.Errorf("error = %v, want wrapping ErrNotOnQueryScheduler", err)
	}
}

func TestNameReturnsPoolName(t *testing.T) {
	s := New("query", 4)
	if s.Name() != "query" {
		t.Errorf("Name() = %q, want %q", s.Name(), "query")
	}
}
