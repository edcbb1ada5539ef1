package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
)

// SelectionPolicy picks a driver for a requested ride. The policy is
// replaceable; the state contract around it is not.
type SelectionPolicy interface {
	SelectDriver(ctx context.Context, ride *models.Ride) (string, error)
}

// Service consumes ride_requested events and advances each ride to
// matched. The bus may deliver duplicates; the conditional transition
// in the lifecycle service makes a second attempt fail instead of
// re-applying.
type Service struct {
	Rides  *lifecycle.Service
	Policy SelectionPolicy
	Logger *slog.Logger
}

// Run subscribes the matcher on the bus. It returns once the
// subscription is registered; handling continues until ctx ends.
func (s *Service) Run(ctx context.Context, b bus.Bus) error {
	return b.Subscribe(ctx, bus.ChannelRideRequested, s.handleRequested)
}

func (s *Service) handleRequested(ctx context.Context, payload []byte) {
	var ride models.Ride
	if err := json.Unmarshal(payload, &ride); err != nil {
		s.Logger.Warn("discarding malformed ride_requested event", "error", err)
		return
	}
	driverID, err := s.Policy.SelectDriver(ctx, &ride)
	if err != nil {
		s.Logger.Warn("no driver selected", "ride_id", ride.ID, "error", err)
		return
	}
	if _, err := s.Rides.Match(ctx, ride.ID, driverID); err != nil {
		if errors.Is(err, apperrors.ErrStateConflict) {
			// duplicate delivery or a concurrent transition won
			s.Logger.Debug("ride no longer matchable", "ride_id", ride.ID, "error", err)
			return
		}
		s.Logger.Error("match transition failed", "ride_id", ride.ID, "error", err)
		return
	}
	s.Logger.Info("ride matched", "ride_id", ride.ID, "driver_id", driverID)
}
