package storage

import (
	"context"

	"github.com/example/ride-dispatch/internal/models"
)

// RideStore defines persistence operations for rides and earnings.
// UpdateStatusIf is the only way a status changes after creation: it
// conditions the write on the expected prior status so concurrent
// transitions on the same ride cannot interleave.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id int64) (*models.Ride, error)

	// UpdateStatusIf atomically sets status to `to` if the current
	// status is one of `from`, binding driverID when non-empty. It
	// returns the updated ride, apperrors.ErrNotFound for an unknown
	// id, or apperrors.ErrStateConflict when the precondition fails.
	UpdateStatusIf(ctx context.Context, id int64, from []models.Status, to models.Status, driverID string) (*models.Ride, error)

	SetRating(ctx context.Context, id int64, rating int, comment string) error
	SetFare(ctx context.Context, id int64, fare float64) error

	RidesByRider(ctx context.Context, riderID string) ([]models.Ride, error)
	RidesByDriver(ctx context.Context, driverID string) ([]models.Ride, error)
	DriverAverageRating(ctx context.Context, driverID string) (float64, error)

	// ActiveRideForDriver returns the driver's most recent ride in the
	// accepted or in_progress state, or ErrNotFound.
	ActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error)

	InsertEarning(ctx context.Context, e *models.Earning) error
	EarningForRide(ctx context.Context, rideID int64) (*models.Earning, error)
	EarningsByDriver(ctx context.Context, driverID string) ([]models.Earning, error)

	// MarkEarningsPaid settles every unpaid earning for the driver and
	// returns how many rows were settled.
	MarkEarningsPaid(ctx context.Context, driverID string) (int64, error)
}

// UserStore holds registered accounts. Credential issuance sits on top
// of it in the auth package.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByPhone(ctx context.Context, phone string) (*models.User, error)
}
