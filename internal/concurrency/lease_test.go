package concurrency

import (
	"context"
	"testing"
	"time"
)

func TestAcquireSucceedsWhenFree(t *testing.T) {
	s := NewMemoryLeaseStore()
	h, ok, err := s.Acquire(context.Background(), "pool-1", "holder-a", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, got ok=%v err=%v", ok, err)
	}
	if h.Holder != "holder-a" {
		t.Fatalf("unexpected holder: %s", h.Holder)
	}
}

func TestAcquireFailsWhileActive(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-a", time.Minute); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-b", time.Minute); ok {
		t.Fatal("expected second acquire to fail while lease active")
	}
}

func TestAcquireStealsExpiredLease(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-a", time.Millisecond); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	time.Sleep(5 * time.Millisecond)
	h, ok, _ := s.Acquire(ctx, "pool-1", "holder-b", time.Minute)
	if !ok {
		t.Fatal("expected steal of expired lease to succeed")
	}
	if h.Holder != "holder-b" {
		t.Fatalf("unexpected holder after steal: %s", h.Holder)
	}
}

func TestReleaseMismatchIsNoOp(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	s.Acquire(ctx, "pool-1", "holder-a", time.Minute)
	if err := s.Release(ctx, "pool-1", "holder-b"); err != nil {
		t.Fatalf("mismatched release should be a no-op, got err: %v", err)
	}
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-c", time.Minute); ok {
		t.Fatal("expected lease to still be held by holder-a after mismatched release")
	}
}

func TestExpiredHolderCannotReleaseRefreshedLease(t *testing.T) {
	// A holder whose lease expired must not be able to release another
	// holder's refreshed lease (spec §8 boundary behavior).
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	s.Acquire(ctx, "pool-1", "holder-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	s.Acquire(ctx, "pool-1", "holder-b", time.Minute)

	if err := s.Release(ctx, "pool-1", "holder-a"); err != nil {
		t.Fatalf("stale release should be a no-op, not an error: %v", err)
	}
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-c", time.Minute); ok {
		t.Fatal("holder-b's lease must still be active")
	}
}

func TestWithLeaseReleasesOnSuccess(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	result, err := WithLease(ctx, s, "pool-1", "holder-a", WithLeaseOptions{}, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || result != 42 {
		t.Fatalf("unexpected result=%d err=%v", result, err)
	}
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-b", time.Minute); !ok {
		t.Fatal("expected lease to be released after WithLease completes")
	}
}

func TestWithLeaseReleasesOnPanic(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	func() {
		defer func() { _ = recover() }()
		WithLease(ctx, s, "pool-1", "holder-a", WithLeaseOptions{}, func(ctx context.Context) (int, error) {
			panic("boom")
		})
	}()
	if _, ok, _ := s.Acquire(ctx, "pool-1", "holder-b", time.Minute); !ok {
		t.Fatal("expected lease to be released even after a panic inside fn")
	}
}

func TestWithLeaseReturnsUnavailableAfterRetries(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	s.Acquire(ctx, "pool-1", "holder-a", time.Minute)

	_, err := WithLease(ctx, s, "pool-1", "holder-b", WithLeaseOptions{MaxRetries: 2, RetryBaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		t.Fatal("fn should not run when lease is unavailable")
		return 0, nil
	})
	if err != ErrLeaseUnavailable {
		t.Fatalf("expected ErrLeaseUnavailable, got %v", err)
	}
}

func TestSweepRemovesExpiredLeases(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	s.Acquire(ctx, "pool-1", "holder-a", time.Millisecond)
	s.Acquire(ctx, "pool-2", "holder-b", time.Minute)
	time.Sleep(5 * time.Millisecond)

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept lease, got %d", n)
	}
	if _, ok, _ := s.Acquire(ctx, "pool-2", "holder-c", time.Minute); ok {
		t.Fatal("pool-2's active lease should not have been swept")
	}
}

func TestRetryWithBackoffSurfacesLastError(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	wantErr := context.DeadlineExceeded
	_, err := RetryWithBackoff(ctx, RetryOptions{MaxRetries: 3, Base: time.Millisecond}, func(ctx context.Context) (int, error) {
		attempts++
		return 0, wantErr
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if err != wantErr {
		t.Fatalf("expected last error surfaced, got %v", err)
	}
}

func TestRetryWithBackoffSucceedsEventually(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	result, err := RetryWithBackoff(ctx, RetryOptions{MaxRetries: 3, Base: time.Millisecond}, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", context.DeadlineExceeded
		}
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("unexpected result=%s err=%v", result, err)
	}
}
