package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/storage"
)

// Inbound and outbound live-session event names.
const (
	evBookRide       = "book_ride"
	evAcceptRide     = "accept_ride"
	evDriverLocation = "driver_location"
	evRideCompleted  = "ride_completed"
	evRideCancelled  = "ride_cancelled"

	evRideRequested  = "ride_requested"
	evRideCreated    = "ride_created"
	evRideAccepted   = "ride_accepted"
	evRideAssigned   = "ride_assigned"
	evRiderLocUpdate = "rider_location_update"
	evNotify         = "notify"
	evError          = "error"
)

// RideService is the slice of the lifecycle service the live handler
// drives.
type RideService interface {
	Request(ctx context.Context, riderID string, originLat, originLng, destLat, destLng float64) (*models.Ride, error)
	Accept(ctx context.Context, rideID int64, driverID string) (*models.Ride, error)
	Get(ctx context.Context, rideID int64) (*models.Ride, error)
}

// Live upgrades HTTP connections into hub sessions and dispatches
// their events. Event semantics mirror the HTTP surface; the hub only
// adds room fan-out on top. Socket-driven operations run under the
// process context so shutdown reaches in-flight work.
type Live struct {
	Hub      *Hub
	Rides    RideService
	Registry *registry.Registry
	Store    storage.RideStore
	Logger   *slog.Logger

	ctx      context.Context
	upgrader websocket.Upgrader
}

func NewLive(ctx context.Context, h *Hub, rides RideService, reg *registry.Registry, store storage.RideStore, logger *slog.Logger) *Live {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Live{
		Hub:      h,
		Rides:    rides,
		Registry: reg,
		Store:    store,
		Logger:   logger,
		ctx:      ctx,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// HandleWS registers a session under the caller's identity and pumps
// events until the connection drops.
func (l *Live) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("userId")
	role := r.URL.Query().Get("role")
	if identity == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := newSession(identity, role)
	l.Hub.Register(s)

	go writePump(conn, s)
	l.readLoop(conn, s)

	l.Hub.Unregister(s)
	_ = conn.Close()
}

func writePump(conn *websocket.Conn, s *Session) {
	for msg := range s.send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (l *Live) readLoop(conn *websocket.Conn, s *Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if l.ctx.Err() != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.Hub.Send(s, evError, map[string]string{"message": "malformed event"})
			continue
		}
		l.dispatch(s, env)
	}
}

func (l *Live) dispatch(s *Session, env Envelope) {
	ctx := l.ctx
	switch env.Event {
	case evBookRide:
		l.onBookRide(ctx, s, env.Data)
	case evAcceptRide:
		l.onAcceptRide(ctx, s, env.Data)
	case evDriverLocation:
		l.onDriverLocation(ctx, s, env.Data)
	case evRideCompleted:
		l.onRideCompleted(ctx, s, env.Data)
	case evRideCancelled:
		l.onRideCancelled(ctx, s, env.Data)
	default:
		l.Hub.Send(s, evError, map[string]string{"message": "unknown event " + env.Event})
	}
}

// onBookRide creates the ride, announces it to all drivers and
// acknowledges the requester privately.
func (l *Live) onBookRide(ctx context.Context, s *Session, data json.RawMessage) {
	var req struct {
		RiderID     string     `json:"rider_id"`
		Origin      [2]float64 `json:"origin"`
		Destination [2]float64 `json:"destination"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		l.Hub.Send(s, evError, map[string]string{"message": "ride creation failed"})
		return
	}
	ride, err := l.Rides.Request(ctx, req.RiderID, req.Origin[0], req.Origin[1], req.Destination[0], req.Destination[1])
	if err != nil {
		l.Logger.Warn("live ride creation failed", "rider_id", req.RiderID, "error", err)
		l.Hub.Send(s, evError, map[string]string{"message": "ride creation failed"})
		return
	}
	l.Hub.Broadcast(DriversRoom, evRideRequested, ride)
	l.Hub.Send(s, evRideCreated, map[string]any{"ride": ride})
}

// onAcceptRide runs the accept transition, notifies the rider's room
// and binds the rider's sessions into the driver's room so direct
// rider-driver broadcasts work from here on.
func (l *Live) onAcceptRide(ctx context.Context, s *Session, data json.RawMessage) {
	var req struct {
		DriverID string `json:"driver_id"`
		RideID   int64  `json:"ride_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		l.Hub.Send(s, evError, map[string]string{"message": "ride acceptance failed"})
		return
	}
	ride, err := l.Rides.Accept(ctx, req.RideID, req.DriverID)
	if err != nil {
		l.Hub.Send(s, evError, map[string]string{"message": "ride already taken or not found"})
		return
	}
	l.Hub.Broadcast(ride.RiderID, evRideAccepted, ride)
	l.Hub.BindRoom(ride.RiderID, ride.DriverID)
	l.Hub.Send(s, evRideAssigned, ride)
}

// onDriverLocation persists the position and relays it to the bound
// rider, but only while the driver has an active ride. This path is
// independent from the generic nearby-query polling.
func (l *Live) onDriverLocation(ctx context.Context, s *Session, data json.RawMessage) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	active, err := l.Store.ActiveRideForDriver(ctx, s.Identity)
	if err != nil {
		return // no active ride, nothing to relay
	}
	loc, err := l.Registry.ReportLocation(ctx, s.Identity, req.Lat, req.Lng)
	if err != nil {
		l.Logger.Warn("live location store failed", "driver_id", s.Identity, "error", err)
		return
	}
	if err := l.Registry.AppendTrack(ctx, active.ID, loc); err != nil {
		l.Logger.Warn("track append failed", "ride_id", active.ID, "error", err)
	}
	l.Hub.Broadcast(s.Identity, evRiderLocUpdate, loc)
}

func (l *Live) onRideCompleted(ctx context.Context, s *Session, data json.RawMessage) {
	rideID, ok := rideIDFrom(data)
	if !ok {
		return
	}
	ride, err := l.Rides.Get(ctx, rideID)
	if err != nil || ride.DriverID == "" {
		return
	}
	l.Hub.Broadcast(ride.DriverID, evNotify, models.Notice{
		Type:  "success",
		Title: "Ride Completed",
		Body:  fmt.Sprintf("Ride %d is completed!", rideID),
	})
}

func (l *Live) onRideCancelled(ctx context.Context, s *Session, data json.RawMessage) {
	rideID, ok := rideIDFrom(data)
	if !ok {
		return
	}
	ride, err := l.Rides.Get(ctx, rideID)
	if err != nil {
		return
	}
	l.Hub.Broadcast(ride.RiderID, evNotify, models.Notice{
		Type:  "warning",
		Title: "Ride Cancelled",
		Body:  fmt.Sprintf("Your ride %d was cancelled.", rideID),
	})
}

func rideIDFrom(data json.RawMessage) (int64, bool) {
	var req struct {
		RideID int64 `json:"ride_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.RideID == 0 {
		return 0, false
	}
	return req.RideID, true
}
