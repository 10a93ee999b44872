// Package persistence defines the narrow storage contract the dispatch
// service depends on (spec §6) and provides a Postgres-backed
// implementation plus an in-memory reference implementation for tests.
// The core is agnostic to the backing store; outside this package only
// cmd/server's migration runner imports database/sql and lib/pq.
package persistence

import (
	"context"
	"errors"

	"github.com/example/ride-pool-dispatch/internal/models"
)

// ErrNotFound is returned by id-lookup operations that miss.
var ErrNotFound = errors.New("persistence: not found")

// ErrVersionConflict is returned by UpdatePoolByVersion when the stored
// version does not match the caller's expectation.
var ErrVersionConflict = errors.New("persistence: version conflict")

// PassengerStore persists passenger rows.
type PassengerStore interface {
	InsertPassenger(ctx context.Context, p models.Passenger) error
	GetPassenger(ctx context.Context, id string) (models.Passenger, error)
	UpdatePassengerState(ctx context.Context, p models.Passenger) error
	QueryPendingPassengers(ctx context.Context, limit int) ([]models.Passenger, error)
	QueryPassengersByUser(ctx context.Context, userID string, state *models.PassengerState) ([]models.Passenger, error)
}

// PoolStore persists pool rows and their version-checked/lease-checked
// mutation paths.
type PoolStore interface {
	InsertPool(ctx context.Context, p models.Pool) error
	GetPool(ctx context.Context, id string) (models.Pool, error)
	// UpdatePoolUnderLease performs unconditional field updates plus a
	// version bump; the caller must already hold the pool's lease.
	UpdatePoolUnderLease(ctx context.Context, p models.Pool) error
	// UpdatePoolByVersion performs a conditional update: it only succeeds
	// if the stored version equals expectedVersion, and it bumps the
	// version to expectedVersion+1 atomically. Returns ErrVersionConflict
	// on mismatch.
	UpdatePoolByVersion(ctx context.Context, p models.Pool, expectedVersion int64) (newVersion int64, err error)
	DeletePool(ctx context.Context, id string) error
	QueryFormingPools(ctx context.Context, maxAgeSeconds int64) ([]models.Pool, error)
}

// WaypointStore persists a pool's waypoints.
type WaypointStore interface {
	InsertWaypoint(ctx context.Context, w models.Waypoint) error
	DeleteWaypointsForPassenger(ctx context.Context, poolID, passengerID string) error
	ListWaypoints(ctx context.Context, poolID string) ([]models.Waypoint, error)
}

// SurgeZoneStore persists surge zones.
type SurgeZoneStore interface {
	GetSurgeZone(ctx context.Context, id string) (models.SurgeZone, error)
	ListSurgeZones(ctx context.Context) ([]models.SurgeZone, error)
	UpdateSurgeZone(ctx context.Context, z models.SurgeZone) error
	// ZoneContaining returns a candidate zone for p, or ErrNotFound. The
	// memory store returns the first zone whose radius contains p; the
	// Postgres store returns the zone with the nearest center without
	// checking its radius, so callers verify containment themselves.
	ZoneContaining(ctx context.Context, p models.Coord) (models.SurgeZone, error)
}

// Store bundles every persistence capability the dispatch service needs.
type Store interface {
	PassengerStore
	PoolStore
	WaypointStore
	SurgeZoneStore
}
