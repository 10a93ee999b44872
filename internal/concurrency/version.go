package concurrency

import (
	"context"
	"errors"

	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/observability"
	"github.com/example/ride-pool-dispatch/internal/persistence"
)

// VersionUpdateResult is the outcome of an updateIfVersion call.
type VersionUpdateResult struct {
	OK         bool
	NewVersion int64
}

// UpdateIfVersion performs a version-checked pool update (spec §4.5).
// The underlying store makes the compare-and-swap atomic; on mismatch
// this returns {OK: false} with no retry — the caller decides whether to
// refetch and retry.
func UpdateIfVersion(ctx context.Context, store persistence.PoolStore, pool models.Pool, expectedVersion int64) (VersionUpdateResult, error) {
	newVersion, err := store.UpdatePoolByVersion(ctx, pool, expectedVersion)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			observability.VersionConflictTotal.Inc()
			return VersionUpdateResult{OK: false}, nil
		}
		return VersionUpdateResult{}, err
	}
	return VersionUpdateResult{OK: true, NewVersion: newVersion}, nil
}
