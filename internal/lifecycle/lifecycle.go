package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// cancellable lists every status a ride can be cancelled from. Only
// completed is unreachable; cancelled itself fails the precondition.
var cancellable = []models.Status{
	models.StatusRequested,
	models.StatusMatched,
	models.StatusAccepted,
	models.StatusInProgress,
}

// PaymentProvider captures a payment on a charged ride. The charge
// path works without one; it is wired only when Stripe is configured.
type PaymentProvider interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
}

// Service is the sole authority over ride status changes. Every
// transition goes through the store's conditional update and, on
// success, publishes the updated snapshot on the bus. Transitions
// either fully apply or are fully rejected; nothing is retried.
type Service struct {
	Store     storage.RideStore
	Bus       bus.Bus
	Logger    *slog.Logger
	BaseFare  float64
	PerKmRate float64
	Payments  PaymentProvider
}

// Request creates a ride in the requested state and announces it.
func (s *Service) Request(ctx context.Context, riderID string, originLat, originLng, destLat, destLng float64) (*models.Ride, error) {
	if riderID == "" {
		return nil, apperrors.Validationf("missing rider_id")
	}
	if !geo.ValidCoord(originLat, originLng) || !geo.ValidCoord(destLat, destLng) {
		return nil, apperrors.Validationf("invalid ride coordinates")
	}
	ride := &models.Ride{
		RiderID:   riderID,
		OriginLat: originLat,
		OriginLng: originLng,
		DestLat:   destLat,
		DestLng:   destLng,
	}
	if err := s.Store.CreateRide(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesRequested.Inc()
	s.publish(ctx, bus.ChannelRideRequested, ride)
	return ride, nil
}

// Match assigns a driver to a requested ride. A duplicate match
// attempt fails the precondition instead of silently re-applying.
func (s *Service) Match(ctx context.Context, rideID int64, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, apperrors.Validationf("missing driver_id")
	}
	ride, err := s.transition(ctx, rideID, []models.Status{models.StatusRequested}, models.StatusMatched, driverID)
	if err != nil {
		return nil, err
	}
	observability.RidesMatched.Inc()
	s.publish(ctx, bus.ChannelRideMatched, ride)
	return ride, nil
}

// Accept moves a matched ride to accepted on behalf of driverID.
func (s *Service) Accept(ctx context.Context, rideID int64, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, apperrors.Validationf("missing driver_id")
	}
	ride, err := s.transition(ctx, rideID, []models.Status{models.StatusMatched}, models.StatusAccepted, driverID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, bus.ChannelRideAccepted, ride)
	return ride, nil
}

func (s *Service) Start(ctx context.Context, rideID int64) (*models.Ride, error) {
	ride, err := s.transition(ctx, rideID, []models.Status{models.StatusAccepted}, models.StatusInProgress, "")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, bus.ChannelRideStarted, ride)
	return ride, nil
}

func (s *Service) Complete(ctx context.Context, rideID int64) (*models.Ride, error) {
	ride, err := s.transition(ctx, rideID, []models.Status{models.StatusInProgress}, models.StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	observability.RidesCompleted.Inc()
	s.publish(ctx, bus.ChannelRideCompleted, ride)
	return ride, nil
}

func (s *Service) Cancel(ctx context.Context, rideID int64) (*models.Ride, error) {
	ride, err := s.transition(ctx, rideID, cancellable, models.StatusCancelled, "")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, bus.ChannelRideCancelled, ride)
	return ride, nil
}

// Rate records a rider's rating. Validation happens before any write.
func (s *Service) Rate(ctx context.Context, rideID int64, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return apperrors.Validationf("rating must be between 1 and 5")
	}
	return s.Store.SetRating(ctx, rideID, rating, comment)
}

// Charge settles a completed ride: it computes the fare from the
// great-circle trip distance, persists it and books exactly one
// earnings record for the driver. Charging twice is a conflict.
func (s *Service) Charge(ctx context.Context, rideID int64) (*models.Earning, float64, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, 0, err
	}
	if ride.Status != models.StatusCompleted {
		return nil, 0, apperrors.Conflictf("ride %d is %s, not completed", rideID, ride.Status)
	}
	if _, err := s.Store.EarningForRide(ctx, rideID); err == nil {
		return nil, 0, apperrors.Conflictf("ride %d already charged", rideID)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, 0, err
	}
	_, fare := s.EstimateFare(ride.OriginLat, ride.OriginLng, ride.DestLat, ride.DestLng)
	if err := s.Store.SetFare(ctx, rideID, fare); err != nil {
		return nil, 0, err
	}
	earning := &models.Earning{DriverID: ride.DriverID, RideID: rideID, Amount: fare}
	if err := s.Store.InsertEarning(ctx, earning); err != nil {
		return nil, 0, err
	}
	if s.Payments != nil {
		s.capture(ctx, ride, fare)
	}
	return earning, fare, nil
}

// EstimateFare is the stateless fare formula: base plus per-km rate
// over the haversine distance.
func (s *Service) EstimateFare(originLat, originLng, destLat, destLng float64) (distanceKm, fare float64) {
	distanceKm = geo.DistanceKm(originLat, originLng, destLat, destLng)
	return distanceKm, s.BaseFare + s.PerKmRate*distanceKm
}

func (s *Service) Get(ctx context.Context, rideID int64) (*models.Ride, error) {
	return s.Store.GetRide(ctx, rideID)
}

func (s *Service) HistoryByRider(ctx context.Context, riderID string) ([]models.Ride, error) {
	return s.Store.RidesByRider(ctx, riderID)
}

func (s *Service) HistoryByDriver(ctx context.Context, driverID string) ([]models.Ride, error) {
	return s.Store.RidesByDriver(ctx, driverID)
}

func (s *Service) DriverRating(ctx context.Context, driverID string) (float64, error) {
	return s.Store.DriverAverageRating(ctx, driverID)
}

func (s *Service) transition(ctx context.Context, rideID int64, from []models.Status, to models.Status, driverID string) (*models.Ride, error) {
	ride, err := s.Store.UpdateStatusIf(ctx, rideID, from, to, driverID)
	if err != nil {
		if errors.Is(err, apperrors.ErrStateConflict) {
			observability.TransitionConflicts.Inc()
		}
		return nil, err
	}
	return ride, nil
}

func (s *Service) publish(ctx context.Context, channel string, ride *models.Ride) {
	if err := s.Bus.Publish(ctx, channel, ride); err != nil {
		// The transition already applied; consumers that were offline
		// lose this event, which is within the bus contract.
		s.Logger.Warn("event publish failed", "channel", channel, "ride_id", ride.ID, "error", err)
	}
}

func (s *Service) capture(ctx context.Context, ride *models.Ride, fare float64) {
	cents := int64(fare * 100)
	id, err := s.Payments.Hold(ctx, cents, "usd", ride.RiderID)
	if err != nil {
		s.Logger.Warn("payment hold failed", "ride_id", ride.ID, "error", err)
		return
	}
	if err := s.Payments.Capture(ctx, id); err != nil {
		s.Logger.Warn("payment capture failed", "ride_id", ride.ID, "intent", id, "error", err)
	}
}
