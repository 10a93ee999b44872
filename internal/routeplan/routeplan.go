// Package routeplan builds and improves a feasible pickup/dropoff
// waypoint sequence for a set of passengers sharing one vehicle
// (spec §4.3): greedy nearest-feasible construction, a detour check, and
// a bounded 2-opt local-search pass.
package routeplan

import (
	"fmt"
	"sort"

	"github.com/example/ride-pool-dispatch/internal/geometry"
	"github.com/example/ride-pool-dispatch/internal/models"
)

const twoOptIterationCap = 100

// PassengerConstraint is the per-passenger input the planner consults.
type PassengerConstraint struct {
	PassengerID      string
	Pickup           models.Coord
	Dropoff          models.Coord
	Seats            int
	Luggage          int
	MaxDetourMin     float64
	DirectDistanceKm float64
	DirectTimeMin    float64
	RequestedAt      int64 // unix seconds, used for FIFO tie-breaks
}

// Constraints bundles the vehicle capacity and the per-passenger table.
type Constraints struct {
	MaxSeats   int
	MaxLuggage int
	Passengers []PassengerConstraint
}

// stop is one expanded waypoint under construction.
type stop struct {
	passengerIdx int
	kind         models.WaypointKind
	coord        models.Coord
}

// Route is a feasible, ordered waypoint sequence with its metrics.
type Route struct {
	Waypoints          []models.Waypoint
	TotalDistanceKm    float64
	TotalTimeMin       float64
	DetourPerPassenger map[string]float64
	EfficiencyScore    float64
}

// ErrInfeasible signals that no feasible sequence exists for the given
// constraints — a normal result, not a programming error (spec §4.3).
type ErrInfeasible struct {
	Reason string
}

func (e *ErrInfeasible) Error() string { return "route infeasible: " + e.Reason }

// Plan runs the full construct -> detour-check -> 2-opt pipeline
// starting from startCoord (spec §4.3, steps 1-4).
func Plan(startCoord models.Coord, c Constraints) (*Route, error) {
	if len(c.Passengers) == 0 {
		return nil, fmt.Errorf("routeplan: at least 1 passenger required")
	}

	stops := expand(c.Passengers)

	order, err := greedyConstruct(startCoord, c, stops)
	if err != nil {
		return nil, err
	}

	detours, ok := checkDetours(startCoord, c, stops, order)
	if !ok {
		return nil, &ErrInfeasible{Reason: "detour tolerance exceeded"}
	}

	order = twoOptImprove(startCoord, c, stops, order)
	detours, ok = checkDetours(startCoord, c, stops, order)
	if !ok {
		// 2-opt only adopts candidates that keep detours valid, so this
		// should not happen; fall back defensively to the pre-improvement
		// order rather than surface an infeasible result post hoc.
		order = greedyOrderFallback(startCoord, c, stops)
		detours, ok = checkDetours(startCoord, c, stops, order)
		if !ok {
			return nil, &ErrInfeasible{Reason: "detour tolerance exceeded after improvement"}
		}
	}

	totalDist, totalTime := routeMetrics(startCoord, stops, order)
	route := &Route{
		Waypoints:          toWaypoints(c, stops, order),
		TotalDistanceKm:    totalDist,
		TotalTimeMin:       totalTime,
		DetourPerPassenger: detours,
		EfficiencyScore:    efficiencyScore(c.Passengers, totalDist),
	}
	return route, nil
}

// expand turns |P| passengers into 2|P| pickup/dropoff stops (step 1).
func expand(passengers []PassengerConstraint) []stop {
	stops := make([]stop, 0, len(passengers)*2)
	for i, p := range passengers {
		stops = append(stops,
			stop{passengerIdx: i, kind: models.WaypointPickup, coord: p.Pickup},
			stop{passengerIdx: i, kind: models.WaypointDropoff, coord: p.Dropoff},
		)
	}
	return stops
}

// onboard tracks which passengers are currently in the vehicle and the
// running load, used during greedy construction.
type onboard struct {
	boarded map[int]bool
	seats   int
	luggage int
}

func newOnboard() *onboard { return &onboard{boarded: make(map[int]bool)} }

func feasible(o *onboard, c Constraints, stops []stop, idx int) bool {
	s := stops[idx]
	p := c.Passengers[s.passengerIdx]
	if s.kind == models.WaypointDropoff {
		return o.boarded[s.passengerIdx]
	}
	return o.seats+p.Seats <= c.MaxSeats && o.luggage+p.Luggage <= c.MaxLuggage
}

func apply(o *onboard, c Constraints, stops []stop, idx int) {
	s := stops[idx]
	p := c.Passengers[s.passengerIdx]
	if s.kind == models.WaypointPickup {
		o.boarded[s.passengerIdx] = true
		o.seats += p.Seats
		o.luggage += p.Luggage
	} else {
		delete(o.boarded, s.passengerIdx)
		o.seats -= p.Seats
		o.luggage -= p.Luggage
	}
}

// greedyConstruct implements step 2: repeatedly pick the nearest feasible
// unvisited waypoint, breaking distance ties by FIFO (older request
// wins).
func greedyConstruct(start models.Coord, c Constraints, stops []stop) ([]int, error) {
	n := len(stops)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	cur := start
	o := newOnboard()

	for len(order) < n {
		best := -1
		bestDist := 0.0
		for i := 0; i < n; i++ {
			if visited[i] || !feasible(o, c, stops, i) {
				continue
			}
			d := geometry.Distance(cur, stops[i].coord)
			if best == -1 || d < bestDist-1e-9 {
				best = i
				bestDist = d
			} else if d < bestDist+1e-9 {
				// tie: prefer the waypoint whose passenger has waited longer
				if c.Passengers[stops[i].passengerIdx].RequestedAt < c.Passengers[stops[best].passengerIdx].RequestedAt {
					best = i
					bestDist = d
				}
			}
		}
		if best == -1 {
			return nil, &ErrInfeasible{Reason: "no feasible waypoint remains"}
		}
		visited[best] = true
		apply(o, c, stops, best)
		order = append(order, best)
		cur = stops[best].coord
	}
	return order, nil
}

// greedyOrderFallback recomputes the plain greedy order, used only as a
// defensive fallback if 2-opt ever produced an order whose recheck fails
// (see the comment in Plan).
func greedyOrderFallback(start models.Coord, c Constraints, stops []stop) []int {
	order, err := greedyConstruct(start, c, stops)
	if err != nil {
		return nil
	}
	return order
}

// arrivalTimes returns the cumulative travel-time-in-minutes at which
// each position in order is reached, starting from start at t=0.
func arrivalTimes(start models.Coord, stops []stop, order []int) []float64 {
	times := make([]float64, len(order))
	cur := start
	t := 0.0
	for i, idx := range order {
		d := geometry.Distance(cur, stops[idx].coord)
		t += geometry.TravelTime(d)
		times[i] = t
		cur = stops[idx].coord
	}
	return times
}

// checkDetours implements step 3: compute onboard time minus direct time
// per passenger and compare against their tolerance. It also rejects any
// ordering where a Dropoff precedes its Pickup.
func checkDetours(start models.Coord, c Constraints, stops []stop, order []int) (map[string]float64, bool) {
	times := arrivalTimes(start, stops, order)

	pickupTime := make(map[int]float64)
	dropoffTime := make(map[int]float64)
	for i, idx := range order {
		s := stops[idx]
		if s.kind == models.WaypointPickup {
			pickupTime[s.passengerIdx] = times[i]
		} else {
			dropoffTime[s.passengerIdx] = times[i]
		}
	}

	detours := make(map[string]float64, len(c.Passengers))
	for i, p := range c.Passengers {
		pt, hasPickup := pickupTime[i]
		dt, hasDropoff := dropoffTime[i]
		if !hasPickup || !hasDropoff || dt < pt {
			return nil, false
		}
		onboardTime := dt - pt
		detour := onboardTime - p.DirectTimeMin
		if detour > p.MaxDetourMin+1e-9 {
			return nil, false
		}
		detours[p.PassengerID] = detour
	}
	return detours, true
}

func routeMetrics(start models.Coord, stops []stop, order []int) (float64, float64) {
	cur := start
	dist := 0.0
	for _, idx := range order {
		dist += geometry.Distance(cur, stops[idx].coord)
		cur = stops[idx].coord
	}
	return dist, geometry.TravelTime(dist)
}

// twoOptImprove implements step 4: bounded 2-opt local search. A
// candidate reversal is adopted only if it strictly reduces total
// distance, every stop stays feasible under the same capacity and
// pickup-before-dropoff rules as greedy construction, and all detour
// constraints still hold.
func twoOptImprove(start models.Coord, c Constraints, stops []stop, order []int) []int {
	n := len(order)
	if n < 4 {
		return order
	}
	best := append([]int(nil), order...)
	bestDist, _ := routeMetrics(start, stops, best)

	for iter := 0; iter < twoOptIterationCap; iter++ {
		improved := false
		for i := 0; i <= n-3; i++ {
			for j := i + 2; j < n; j++ {
				candidate := reversedBetween(best, i, j)
				dist, _ := routeMetrics(start, stops, candidate)
				if dist >= bestDist-1e-9 {
					continue
				}
				o := newOnboard()
				fits := true
				for _, idx := range candidate {
					if !feasible(o, c, stops, idx) {
						fits = false
						break
					}
					apply(o, c, stops, idx)
				}
				if !fits {
					continue
				}
				if _, ok := checkDetours(start, c, stops, candidate); !ok {
					continue
				}
				best = candidate
				bestDist = dist
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// reversedBetween returns a copy of order with the subsequence
// (i+1..j) reversed in place.
func reversedBetween(order []int, i, j int) []int {
	out := append([]int(nil), order...)
	lo, hi := i+1, j
	for lo < hi {
		out[lo], out[hi] = out[hi], out[lo]
		lo++
		hi--
	}
	return out
}

func toWaypoints(c Constraints, stops []stop, order []int) []models.Waypoint {
	wps := make([]models.Waypoint, len(order))
	for pos, idx := range order {
		s := stops[idx]
		wps[pos] = models.Waypoint{
			PassengerID: c.Passengers[s.passengerIdx].PassengerID,
			Position:    pos,
			Kind:        s.kind,
			Coordinate:  s.coord,
		}
	}
	return wps
}

// efficiencyScore is the ratio of summed direct distances to realized
// route distance (spec §4.3, glossary).
func efficiencyScore(passengers []PassengerConstraint, totalDistanceKm float64) float64 {
	if totalDistanceKm <= 0 {
		return 0
	}
	sum := 0.0
	for _, p := range passengers {
		sum += p.DirectDistanceKm
	}
	return sum / totalDistanceKm
}

// SortPassengersByRequestTime returns a FIFO-ordered copy, used by
// callers building constraint tables from arbitrary-order input.
func SortPassengersByRequestTime(pcs []PassengerConstraint) []PassengerConstraint {
	out := append([]PassengerConstraint(nil), pcs...)
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt < out[j].RequestedAt })
	return out
}
