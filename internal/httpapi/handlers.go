package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-pool-dispatch/internal/concurrency"
	"github.com/example/ride-pool-dispatch/internal/dispatch"
	"github.com/example/ride-pool-dispatch/internal/geometry"
	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/persistence"
	"github.com/example/ride-pool-dispatch/internal/pricing"
)

type createRequestBody struct {
	UserID           string       `json:"user_id"`
	Pickup           models.Coord `json:"pickup"`
	Dropoff          models.Coord `json:"dropoff"`
	SeatsRequired    int          `json:"seats_required"`
	LuggageCount     int          `json:"luggage_count"`
	MaxDetourMinutes float64      `json:"max_detour_minutes"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	passenger, estimate, err := s.dispatch.CreateRequest(r.Context(), dispatch.NewRequest{
		UserID:           body.UserID,
		Pickup:           body.Pickup,
		Dropoff:          body.Dropoff,
		SeatsRequired:    body.SeatsRequired,
		LuggageCount:     body.LuggageCount,
		MaxDetourMinutes: body.MaxDetourMinutes,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "request_rejected", err.Error())
		return
	}
	writeOK(w, map[string]any{"passenger": passenger, "estimated_final_fare": estimate.Final})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mustVar(r, "id")
	p, err := s.store.GetPassenger(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "ride request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeOK(w, p)
}

func (s *Server) handleRidesByUser(w http.ResponseWriter, r *http.Request) {
	userID := mustVar(r, "userId")
	var state *models.PassengerState
	if v := r.URL.Query().Get("state"); v != "" {
		state = statePtr(models.PassengerState(v))
	}
	passengers, err := s.store.QueryPassengersByUser(r.Context(), userID, state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeOK(w, passengers)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id := mustVar(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	result, err := s.dispatch.CancelRequest(r.Context(), id, body.Reason)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "ride request not found")
			return
		}
		if errors.Is(err, dispatch.ErrNoLongerPending) {
			writeError(w, http.StatusBadRequest, "not_cancellable", "ride is no longer pending or matched")
			return
		}
		if errors.Is(err, concurrency.ErrLeaseUnavailable) {
			writeError(w, http.StatusConflict, "lease_unavailable", "pool is locked by a concurrent operation, retry")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "cancel_failed", err.Error())
		return
	}
	writeOK(w, map[string]any{"id": id, "status": "cancelled", "refund_amount": result.RefundAmount})
}

func (s *Server) handleRunMatchingCycle(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatch.RunMatchingCycle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "match_cycle_failed", err.Error())
		return
	}
	writeOK(w, result)
}

type estimateBody struct {
	Pickup  models.Coord `json:"pickup"`
	Dropoff models.Coord `json:"dropoff"`
	Seats   int          `json:"seats_required"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var body estimateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	seats := body.Seats
	if seats <= 0 {
		seats = 1
	}
	class, ok := models.SmallestVehicleFor(seats, 0)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "no_vehicle_class", "no vehicle class accommodates this request")
		return
	}
	distanceKm := geometry.Distance(body.Pickup, body.Dropoff)
	timeMin := geometry.TravelTime(distanceKm)

	zone, err := s.store.ZoneContaining(r.Context(), body.Pickup)
	var zs *pricing.ZoneSnapshot
	if err == nil && geometry.WithinRadius(body.Pickup, zone.Center, zone.RadiusKm) {
		zs = &pricing.ZoneSnapshot{ActiveRequests: zone.ActiveRequests, AvailableDrivers: zone.AvailableDrivers, Multiplier: zone.Multiplier}
	}

	breakdown := pricing.Price(pricing.Factors{
		Class:      class.Class,
		DistanceKm: distanceKm,
		TimeMin:    timeMin,
		PoolSize:   1,
		Zone:       zs,
		Weather:    pricing.WeatherClear,
	})
	writeOK(w, breakdown)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := mustVar(r, "id")
	pool, err := s.store.GetPool(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "pool not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	waypoints, err := s.store.ListWaypoints(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeOK(w, map[string]any{"pool": pool, "waypoints": waypoints})
}

func (s *Server) handleListFormingPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.QueryFormingPools(r.Context(), 3600)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeOK(w, pools)
}

func (s *Server) handleSurgeAnalytics(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.ListSurgeZones(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeOK(w, zones)
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.QueryFormingPools(r.Context(), 24*3600)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	stats := map[string]any{"forming_pools": len(pools)}
	writeOK(w, stats)
}
