package matcher

import (
	"context"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

// FixedPolicy always assigns the same driver. It is the default
// placeholder assignment, an extension point rather than a completed
// algorithm.
type FixedPolicy struct {
	DriverID string
}

func (p FixedPolicy) SelectDriver(ctx context.Context, ride *models.Ride) (string, error) {
	return p.DriverID, nil
}

// NearbyQuerier is the proximity lookup NearestPolicy needs; the geo
// registry satisfies it.
type NearbyQuerier interface {
	QueryNearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyDriver, error)
}

// NearestPolicy assigns the closest live driver to the ride's origin.
type NearestPolicy struct {
	Registry NearbyQuerier
	RadiusKm float64
}

func (p NearestPolicy) SelectDriver(ctx context.Context, ride *models.Ride) (string, error) {
	candidates, err := p.Registry.QueryNearby(ctx, ride.OriginLat, ride.OriginLng, p.RadiusKm)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", apperrors.NotFoundf("no live drivers within %.1f km", p.RadiusKm)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.DistanceKm < best.DistanceKm {
			best = c
		}
	}
	return best.DriverID, nil
}
