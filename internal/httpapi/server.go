// Package httpapi exposes the dispatch service over HTTP with a thin
// gorilla/mux router, request-id/observability/recover middleware, and a
// uniform JSON envelope for errors (spec §6, §7).
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-pool-dispatch/internal/dispatch"
	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/persistence"
)

// Server wires the dispatch service to a gorilla/mux router.
type Server struct {
	dispatch *dispatch.Service
	store    persistence.Store
	logger   *slog.Logger
	mux      *mux.Router
}

// NewServer builds a Server and registers its routes and middleware.
func NewServer(d *dispatch.Service, store persistence.Store, logger *slog.Logger) *Server {
	s := &Server{dispatch: d, store: store, logger: logger, mux: mux.NewRouter()}
	s.routes()
	s.registerMiddleware()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/api/rides/request", s.handleCreateRequest).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/rides/estimate", s.handleEstimate).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/rides/match", s.handleRunMatchingCycle).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/rides/user/{userId}", s.handleRidesByUser).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/rides/{id}/cancel", s.handleCancelRequest).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/rides/{id}", s.handleGetRide).Methods(http.MethodGet)

	s.mux.HandleFunc("/api/pools/analytics/surge", s.handleSurgeAnalytics).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/pools/analytics/stats", s.handlePoolStats).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/pools/{id}", s.handleGetPool).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/pools", s.handleListFormingPools).Methods(http.MethodGet)
}

// envelope is the uniform response shape from spec §7.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Success: false, Error: code, Message: message})
}

func mustVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func statePtr(v models.PassengerState) *models.PassengerState { return &v }
