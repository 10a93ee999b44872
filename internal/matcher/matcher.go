// Package matcher clusters pending requests and selects mutually
// compatible subsets that can share a vehicle, invoking the route
// planner and pricing engine to produce match proposals. The matcher
// never writes state — the dispatch service commits proposals (spec
// §4.4).
package matcher

import (
	"sort"
	"time"

	"github.com/example/ride-pool-dispatch/internal/geometry"
	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/pricing"
	"github.com/example/ride-pool-dispatch/internal/routeplan"
)

// DefaultClusterRadiusKm, DefaultMaxPoolSize and DefaultTimeoutBudget are
// the spec §4.4 defaults.
const (
	DefaultClusterRadiusKm    = 5.0
	DefaultMaxPoolSize        = 4
	DefaultTimeoutBudget      = 250 * time.Millisecond
	DefaultDirectionThreshold = 45.0

	maxCombinedSeats   = 6 // compatibility ceiling (the SUV's seat count)
	maxCombinedLuggage = 8 // compatibility ceiling (the Van's luggage capacity)
)

// Proposal is a candidate pool the matcher offers the dispatch service.
type Proposal struct {
	PoolID          string
	VehicleClass    models.VehicleClass
	PassengerIDs    []string
	Route           *routeplan.Route
	PricePerSeat    map[string]float64
	EfficiencyScore float64
}

// Config bundles the matcher's tunable knobs.
type Config struct {
	ClusterRadiusKm    float64
	MaxPoolSize        int
	TimeoutBudget      time.Duration
	DirectionThreshold float64
	IDGenerator        func() string
	Now                func() time.Time
	// Zone is consulted for surge composition at tryFormPool time; nil
	// means no surge zone applies.
	Zone *pricing.ZoneSnapshot
	// LocalTime and Weather feed the pricing engine; defaults to
	// time.Now() / clear if unset.
	LocalTime *time.Time
	Weather   pricing.Weather
}

func (c Config) withDefaults() Config {
	if c.ClusterRadiusKm <= 0 {
		c.ClusterRadiusKm = DefaultClusterRadiusKm
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.TimeoutBudget <= 0 {
		c.TimeoutBudget = DefaultTimeoutBudget
	}
	if c.DirectionThreshold <= 0 {
		c.DirectionThreshold = DefaultDirectionThreshold
	}
	if c.IDGenerator == nil {
		c.IDGenerator = newID
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Weather == "" {
		c.Weather = pricing.WeatherClear
	}
	return c
}

// Match runs the full clustering + pool-forming pipeline over pending
// passengers, sorted ascending by request timestamp (spec §4.4).
func Match(pending []models.Passenger, cfg Config) []Proposal {
	cfg = cfg.withDefaults()
	deadline := cfg.Now().Add(cfg.TimeoutBudget)

	sorted := append([]models.Passenger(nil), pending...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RequestedAt.Before(sorted[j].RequestedAt) })

	clusters := cluster(sorted, cfg.ClusterRadiusKm)

	var proposals []Proposal
	for _, c := range clusters {
		if cfg.Now().After(deadline) {
			return proposals
		}
		proposals = append(proposals, formPoolsFromCluster(c, cfg)...)
	}
	return proposals
}

// cluster implements spec §4.4 step 2: deterministic union-by-proximity
// over pickup coordinates, walking passengers in input order.
func cluster(passengers []models.Passenger, radiusKm float64) [][]models.Passenger {
	assigned := make([]bool, len(passengers))
	var clusters [][]models.Passenger

	for i := range passengers {
		if assigned[i] {
			continue
		}
		seed := passengers[i]
		assigned[i] = true
		group := []models.Passenger{seed}
		for j := i + 1; j < len(passengers); j++ {
			if assigned[j] {
				continue
			}
			if geometry.WithinRadius(passengers[j].Pickup, seed.Pickup, radiusKm) {
				assigned[j] = true
				group = append(group, passengers[j])
			}
		}
		clusters = append(clusters, group)
	}
	return clusters
}

// formPoolsFromCluster implements spec §4.4 step 3.
func formPoolsFromCluster(c []models.Passenger, cfg Config) []Proposal {
	if len(c) <= cfg.MaxPoolSize {
		if p, ok := tryFormPool(c, cfg); ok {
			return []Proposal{p}
		}
		// no feasible shared route for the whole cluster; fall through and
		// grow smaller compatible pools from the head instead.
	}

	var proposals []Proposal
	remaining := append([]models.Passenger(nil), c...)
	for len(remaining) > 0 {
		seed := remaining[0]
		admitted := []models.Passenger{seed}

		// walk the remainder in reverse order (newest-first), admitting
		// compatible candidates until pool size or capacity caps are hit.
		var stillRemaining []models.Passenger
		for i := len(remaining) - 1; i >= 1; i-- {
			cand := remaining[i]
			if len(admitted) >= cfg.MaxPoolSize {
				stillRemaining = append(stillRemaining, cand)
				continue
			}
			if compatible(admitted, seed, cand, cfg.DirectionThreshold) {
				admitted = append(admitted, cand)
			} else {
				stillRemaining = append(stillRemaining, cand)
			}
		}
		// stillRemaining was built newest-first; restore ascending order.
		for l, r := 0, len(stillRemaining)-1; l < r; l, r = l+1, r-1 {
			stillRemaining[l], stillRemaining[r] = stillRemaining[r], stillRemaining[l]
		}
		remaining = stillRemaining

		if p, ok := tryFormPool(admitted, cfg); ok {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// compatible implements spec §4.4.2's predicate. admitted is the set E
// so far: the candidate's leg must share direction with every member's
// leg (seed is admitted[0] and is not consulted separately); combined
// capacity is checked against the compatibility ceilings above.
func compatible(admitted []models.Passenger, seed, candidate models.Passenger, thresholdDeg float64) bool {
	for _, e := range admitted {
		if !geometry.SameDirection(e.Pickup, e.Dropoff, candidate.Pickup, candidate.Dropoff, thresholdDeg) {
			return false
		}
	}
	seats, luggage := 0, 0
	for _, e := range admitted {
		seats += e.SeatsRequired
		luggage += e.LuggageCount
	}
	seats += candidate.SeatsRequired
	luggage += candidate.LuggageCount
	return seats <= maxCombinedSeats && luggage <= maxCombinedLuggage
}

// tryFormPool implements spec §4.4.1.
func tryFormPool(passengers []models.Passenger, cfg Config) (Proposal, bool) {
	if len(passengers) == 0 {
		return Proposal{}, false
	}

	totalSeats, totalLuggage := 0, 0
	for _, p := range passengers {
		totalSeats += p.SeatsRequired
		totalLuggage += p.LuggageCount
	}
	spec, ok := models.SmallestVehicleFor(totalSeats, totalLuggage)
	if !ok {
		return Proposal{}, false
	}

	pickups := make([]models.Coord, len(passengers))
	for i, p := range passengers {
		pickups[i] = p.Pickup
	}
	start := geometry.Centroid(pickups)

	pcs := make([]routeplan.PassengerConstraint, len(passengers))
	for i, p := range passengers {
		d := geometry.Distance(p.Pickup, p.Dropoff)
		pcs[i] = routeplan.PassengerConstraint{
			PassengerID:      p.ID,
			Pickup:           p.Pickup,
			Dropoff:          p.Dropoff,
			Seats:            p.SeatsRequired,
			Luggage:          p.LuggageCount,
			MaxDetourMin:     p.MaxDetourMinutes,
			DirectDistanceKm: d,
			DirectTimeMin:    geometry.TravelTime(d),
			RequestedAt:      p.RequestedAt.Unix(),
		}
	}

	route, err := routeplan.Plan(start, routeplan.Constraints{
		MaxSeats:   spec.Capacity.Seats,
		MaxLuggage: spec.Capacity.Luggage,
		Passengers: pcs,
	})
	if err != nil {
		return Proposal{}, false
	}

	localTime := cfg.Now()
	if cfg.LocalTime != nil {
		localTime = *cfg.LocalTime
	}
	priceBreakdown := pricing.Price(pricing.Factors{
		Class:      spec.Class,
		DistanceKm: route.TotalDistanceKm,
		TimeMin:    route.TotalTimeMin,
		PoolSize:   len(passengers),
		DetourMin:  maxDetour(route.DetourPerPassenger),
		Zone:       cfg.Zone,
		LocalTime:  localTime,
		Weather:    cfg.Weather,
	})
	// pre-commit per-seat price: base * surge * pool-size discount,
	// independent of the realized per-passenger detour. Dispatch commits
	// this figure unchanged as each passenger's final fare; no per-passenger
	// detour penalty is applied at commit time.
	perSeat := priceBreakdown.Base * priceBreakdown.Surge * preCommitDiscount(len(passengers))

	prices := make(map[string]float64, len(passengers))
	ids := make([]string, len(passengers))
	for i, p := range passengers {
		prices[p.ID] = round2(perSeat)
		ids[i] = p.ID
	}

	return Proposal{
		PoolID:          cfg.IDGenerator(),
		VehicleClass:    spec.Class,
		PassengerIDs:    ids,
		Route:           route,
		PricePerSeat:    prices,
		EfficiencyScore: route.EfficiencyScore,
	}, true
}

func preCommitDiscount(poolSize int) float64 {
	mult := 1 - 0.15*float64(poolSize-1)
	if mult < 0.50 {
		mult = 0.50
	}
	return mult
}

func maxDetour(detours map[string]float64) float64 {
	max := 0.0
	for _, d := range detours {
		if d > max {
			max = d
		}
	}
	return max
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// ScoreExistingPool implements spec §4.4.3, used when online augmentation
// of a Forming pool is wired in by a caller.
func ScoreExistingPool(currentSeats, maxSeats int, ageMinutes float64) float64 {
	score := 100.0 - 20.0*(float64(currentSeats)/float64(maxSeats)) - min(ageMinutes*2, 30)
	if score < 0 {
		score = 0
	}
	return score
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func newID() string {
	return "pool-" + time.Now().Format("20060102T150405.000000000")
}
