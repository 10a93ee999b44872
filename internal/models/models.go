// Package models holds the shared domain types for the ride-pooling
// dispatch engine: passengers, pools, waypoints, surge zones and pool
// leases. These are semantic types, not storage rows — persistence
// implementations map to and from them.
package models

import "time"

// Coord is a WGS84 decimal-degree coordinate.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PassengerState is the lifecycle state of a ride request.
type PassengerState string

const (
	PassengerPending   PassengerState = "pending"
	PassengerMatched   PassengerState = "matched"
	PassengerInTransit PassengerState = "in_transit"
	PassengerCompleted PassengerState = "completed"
	PassengerCancelled PassengerState = "cancelled"
)

// PoolState is the lifecycle state of a pooled trip.
type PoolState string

const (
	PoolForming    PoolState = "forming"
	PoolMatched    PoolState = "matched"
	PoolInTransit  PoolState = "in_transit"
	PoolCompleted  PoolState = "completed"
)

// VehicleClass is one of the static vehicle classes.
type VehicleClass string

const (
	VehicleSedan VehicleClass = "sedan"
	VehicleSUV   VehicleClass = "suv"
	VehicleVan   VehicleClass = "van"
)

// WaypointKind distinguishes pickup from dropoff stops.
type WaypointKind string

const (
	WaypointPickup  WaypointKind = "pickup"
	WaypointDropoff WaypointKind = "dropoff"
)

// DemandTier buckets a surge zone's current activity level.
type DemandTier string

const (
	DemandLow      DemandTier = "low"
	DemandNormal   DemandTier = "normal"
	DemandHigh     DemandTier = "high"
	DemandVeryHigh DemandTier = "very_high"
)

// Capacity holds seat/luggage capacity or load figures.
type Capacity struct {
	Seats   int `json:"seats"`
	Luggage int `json:"luggage"`
}

// VehicleClassSpec pairs a class with its static capacity and rate card.
type VehicleClassSpec struct {
	Class      VehicleClass
	Capacity   Capacity
	MinFare    float64
	RatePerKm  float64
	RatePerMin float64
}

// VehicleClasses is the static class table from spec §3, ordered smallest
// first so callers can pick "the smallest class that dominates" by
// scanning in order.
var VehicleClasses = []VehicleClassSpec{
	{Class: VehicleSedan, Capacity: Capacity{Seats: 4, Luggage: 3}, MinFare: 8.00, RatePerKm: 2.50, RatePerMin: 0.40},
	{Class: VehicleSUV, Capacity: Capacity{Seats: 6, Luggage: 5}, MinFare: 12.00, RatePerKm: 3.50, RatePerMin: 0.55},
	{Class: VehicleVan, Capacity: Capacity{Seats: 8, Luggage: 8}, MinFare: 15.00, RatePerKm: 4.50, RatePerMin: 0.70},
}

// SmallestVehicleFor returns the smallest vehicle class whose capacity
// dominates both totals, or false if none does (spec §3, §4.4.1).
func SmallestVehicleFor(seats, luggage int) (VehicleClassSpec, bool) {
	for _, spec := range VehicleClasses {
		if spec.Capacity.Seats >= seats && spec.Capacity.Luggage >= luggage {
			return spec, true
		}
	}
	return VehicleClassSpec{}, false
}

// ClassSpec looks up the static rate/capacity table entry for a class.
func ClassSpec(c VehicleClass) (VehicleClassSpec, bool) {
	for _, spec := range VehicleClasses {
		if spec.Class == c {
			return spec, true
		}
	}
	return VehicleClassSpec{}, false
}

// Passenger is a single ride request, pending or resolved (spec §3).
type Passenger struct {
	ID                string
	UserID            string
	Pickup            Coord
	Dropoff           Coord
	LuggageCount      int
	SeatsRequired     int
	MaxDetourMinutes  float64
	State             PassengerState
	PoolID            *string
	BaseFare          float64
	FinalFare         *float64
	SurgeMultiplier   float64
	RequestedAt       time.Time
	MatchedAt         *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	CancellationReason string
}

// Pool is a shared-vehicle trip formed by the matcher (spec §3).
type Pool struct {
	ID              string
	DriverID        *string
	VehicleClass    VehicleClass
	MaxCapacity     Capacity
	CurrentLoad     Capacity
	State           PoolState
	TotalDistanceKm float64
	Route           []Waypoint
	CreatedAt       time.Time
	MatchedAt       *time.Time
	CompletedAt     *time.Time
	Version         int64
}

// Waypoint is one pickup or dropoff stop along a pool's committed route
// (spec §3).
type Waypoint struct {
	PoolID      string
	PassengerID string
	Position    int
	Kind        WaypointKind
	Coordinate  Coord
}

// SurgeZone is a circular geographic region with a demand-driven
// multiplier (spec §3).
type SurgeZone struct {
	ID                string
	Name              string
	Center            Coord
	RadiusKm          float64
	Multiplier        float64
	DemandTier        DemandTier
	ActiveRequests    int
	AvailableDrivers  int
}

// PoolLease is a named mutual-exclusion lock record over a pool (spec §3).
type PoolLease struct {
	PoolID    string
	Holder    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Version    int64
}
