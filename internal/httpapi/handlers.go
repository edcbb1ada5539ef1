package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Validationf("invalid request body"))
		return
	}
	u, err := s.auth.Register(r.Context(), req.Name, req.Phone, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Validationf("invalid request body"))
		return
	}
	u, token, err := s.auth.Login(r.Context(), req.Phone, req.Password, req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"id": u.ID, "name": u.Name}
	if token != "" {
		resp["token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RiderID   string   `json:"rider_id"`
		OriginLat *float64 `json:"origin_lat"`
		OriginLng *float64 `json:"origin_lng"`
		DestLat   *float64 `json:"dest_lat"`
		DestLng   *float64 `json:"dest_lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Validationf("invalid request body"))
		return
	}
	if req.RiderID == "" || req.OriginLat == nil || req.OriginLng == nil || req.DestLat == nil || req.DestLng == nil {
		s.writeError(w, apperrors.Validationf("missing required ride parameters"))
		return
	}
	ride, err := s.rides.Request(r.Context(), req.RiderID, *req.OriginLat, *req.OriginLng, *req.DestLat, *req.DestLng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ride": ride})
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.rides.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		s.writeError(w, apperrors.Validationf("missing driver_id"))
		return
	}
	if _, err := s.rides.Accept(r.Context(), id, req.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Ride accepted", "ride_id": id})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.rides.Start, "Ride started")
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.rides.Complete, "Ride completed")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.rides.Cancel, "Ride cancelled")
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Rating  *int   `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rating == nil {
		s.writeError(w, apperrors.Validationf("invalid rating (1-5)"))
		return
	}
	if err := s.rides.Rate(r.Context(), id, *req.Rating, req.Comment); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rating submitted"})
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	earning, fare, err := s.rides.Charge(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride_id": id, "fare": fare, "earning": earning})
}

func (s *Server) handleRiderHistory(w http.ResponseWriter, r *http.Request) {
	rides, err := s.rides.HistoryByRider(r.Context(), mux.Vars(r)["riderID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleDriverHistory(w http.ResponseWriter, r *http.Request) {
	rides, err := s.rides.HistoryByDriver(r.Context(), mux.Vars(r)["driverID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleDriverRating(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driverID"]
	avg, err := s.rides.DriverRating(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "avg_rating": avg})
}

func (s *Server) handleDriverEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := s.rides.Store.EarningsByDriver(r.Context(), mux.Vars(r)["driverID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earnings)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driverID"]
	settled, err := s.rides.Store.MarkEarningsPaid(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "settled": settled})
}

func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driverID"]
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lat == nil || req.Lng == nil {
		s.writeError(w, apperrors.Validationf("missing lat/lng"))
		return
	}
	loc, err := s.registry.ReportLocation(r.Context(), driverID, *req.Lat, *req.Lng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.kafka != nil {
		if err := s.kafka.PublishLocation(loc); err != nil {
			s.logger.Warn("kafka location publish failed", "driver_id", driverID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Location stored and published"})
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.registry.FreshLocation(r.Context(), mux.Vars(r)["driverID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	radius, err3 := strconv.ParseFloat(q.Get("radius"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		s.writeError(w, apperrors.Validationf("missing lat/lng/radius"))
		return
	}
	results, err := s.registry.QueryNearby(r.Context(), lat, lng, radius)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	track, err := s.registry.Track(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleFareEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	oLat, err1 := strconv.ParseFloat(q.Get("origin_lat"), 64)
	oLng, err2 := strconv.ParseFloat(q.Get("origin_lng"), 64)
	dLat, err3 := strconv.ParseFloat(q.Get("dest_lat"), 64)
	dLng, err4 := strconv.ParseFloat(q.Get("dest_lng"), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		s.writeError(w, apperrors.Validationf("missing coordinates"))
		return
	}
	dist, fare := s.rides.EstimateFare(oLat, oLng, dLat, dLng)
	writeJSON(w, http.StatusOK, map[string]any{
		"distance_km":    dist,
		"estimated_fare": strconv.FormatFloat(fare, 'f', 2, 64),
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*models.Ride, error), message string) {
	id, err := ridePathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := op(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "ride_id": id})
}

func ridePathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["rideID"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validationf("invalid ride id %q", raw)
	}
	return id, nil
}
