package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/persistence"
)

func TestUpdateIfVersionConflictThenRetry(t *testing.T) {
	// scenario 5 from spec §8: two writers read version=5, first
	// succeeds (->6), second must observe ok=false, refetch, retry, and
	// ultimately succeed (->7).
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	pool := models.Pool{ID: "pool-1", State: models.PoolForming, CreatedAt: time.Now()}
	if err := store.InsertPool(ctx, pool); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		current, _ := store.GetPool(ctx, "pool-1")
		if _, err := store.UpdatePoolByVersion(ctx, current, current.Version); err != nil {
			t.Fatalf("bootstrap update %d failed: %v", i, err)
		}
	}

	current, _ := store.GetPool(ctx, "pool-1")
	if current.Version != 5 {
		t.Fatalf("expected version 5 before test, got %d", current.Version)
	}

	first, err := UpdateIfVersion(ctx, store, current, 5)
	if err != nil || !first.OK || first.NewVersion != 6 {
		t.Fatalf("expected first writer to succeed at version 6, got %+v err=%v", first, err)
	}

	second, err := UpdateIfVersion(ctx, store, current, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.OK {
		t.Fatal("expected second writer with stale version to observe ok=false")
	}

	refetched, _ := store.GetPool(ctx, "pool-1")
	retry, err := UpdateIfVersion(ctx, store, refetched, refetched.Version)
	if err != nil || !retry.OK || retry.NewVersion != 7 {
		t.Fatalf("expected retry to succeed at version 7, got %+v err=%v", retry, err)
	}
}
