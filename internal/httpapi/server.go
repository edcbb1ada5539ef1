package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/hub"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/registry"
)

// Server wires the dispatch core behind the HTTP surface. All
// collaborators are injected; connection lifecycle belongs to the
// process entry point.
type Server struct {
	rides    *lifecycle.Service
	registry *registry.Registry
	live     *hub.Live
	auth     *auth.Service
	kafka    *ingest.KafkaProducer // optional location mirror
	logger   *slog.Logger
	ready    func(r *http.Request) error

	mux *mux.Router
}

type Options struct {
	Rides    *lifecycle.Service
	Registry *registry.Registry
	Live     *hub.Live
	Auth     *auth.Service
	Kafka    *ingest.KafkaProducer
	Logger   *slog.Logger
	// Ready checks backing-store connectivity for the readiness probe.
	Ready func(r *http.Request) error
}

func NewServer(opts Options) *Server {
	s := &Server{
		rides:    opts.Rides,
		registry: opts.Registry,
		live:     opts.Live,
		auth:     opts.Auth,
		kafka:    opts.Kafka,
		logger:   opts.Logger,
		ready:    opts.Ready,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.live.HandleWS)

	s.mux.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	rides := s.mux.PathPrefix("/rides").Subrouter()
	rides.Use(s.auth.Middleware)
	rides.HandleFunc("/request", s.handleRequestRide).Methods("POST")
	rides.HandleFunc("/status/{rideID}", s.handleRideStatus).Methods("GET")
	rides.HandleFunc("/accept/{rideID}", s.handleAccept).Methods("POST")
	rides.HandleFunc("/start/{rideID}", s.handleStart).Methods("POST")
	rides.HandleFunc("/complete/{rideID}", s.handleComplete).Methods("POST")
	rides.HandleFunc("/cancel/{rideID}", s.handleCancel).Methods("POST")
	rides.HandleFunc("/rate/{rideID}", s.handleRate).Methods("POST")
	rides.HandleFunc("/charge/{rideID}", s.handleCharge).Methods("POST")
	rides.HandleFunc("/history/rider/{riderID}", s.handleRiderHistory).Methods("GET")
	rides.HandleFunc("/history/driver/{driverID}", s.handleDriverHistory).Methods("GET")
	rides.HandleFunc("/ratings/driver/{driverID}", s.handleDriverRating).Methods("GET")
	rides.HandleFunc("/earnings/driver/{driverID}", s.handleDriverEarnings).Methods("GET")
	rides.HandleFunc("/earnings/driver/{driverID}/payout", s.handlePayout).Methods("POST")
	rides.HandleFunc("/location/driver/{driverID}", s.handleReportLocation).Methods("POST")
	rides.HandleFunc("/location/driver/{driverID}", s.handleGetLocation).Methods("GET")
	rides.HandleFunc("/drivers/nearby", s.handleNearby).Methods("GET")
	rides.HandleFunc("/track/{rideID}", s.handleTrack).Methods("GET")
	rides.HandleFunc("/fare/estimate", s.handleFareEstimate).Methods("GET")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
