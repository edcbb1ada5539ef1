package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// DB exposes the underlying handle for migrations at process start.
func (p *PostgresStore) DB() *sql.DB { return p.db }

const rideColumns = `id, rider_id, driver_id, origin_lat, origin_lng, dest_lat, dest_lng, status, rating, comment, fare, created_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	r.Status = models.StatusRequested
	return p.db.QueryRowContext(ctx,
		`INSERT INTO rides(rider_id, origin_lat, origin_lng, dest_lat, dest_lng, status)
		 VALUES($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		r.RiderID, r.OriginLat, r.OriginLng, r.DestLat, r.DestLng, r.Status,
	).Scan(&r.ID, &r.CreatedAt)
}

func (p *PostgresStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("ride %d", id)
	}
	return r, err
}

func (p *PostgresStore) UpdateStatusIf(ctx context.Context, id int64, from []models.Status, to models.Status, driverID string) (*models.Ride, error) {
	// Single conditional UPDATE; the WHERE clause on status is what
	// makes concurrent transitions on one ride safe.
	row := p.db.QueryRowContext(ctx,
		`UPDATE rides SET status=$1, driver_id=COALESCE(NULLIF($2,''), driver_id)
		 WHERE id=$3 AND status = ANY($4)
		 RETURNING `+rideColumns,
		to, driverID, id, pq.Array(statusStrings(from)))
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		cur, gerr := p.GetRide(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperrors.Conflictf("ride %d is %s", id, cur.Status)
	}
	return r, err
}

func (p *PostgresStore) SetRating(ctx context.Context, id int64, rating int, comment string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET rating=$1, comment=$2 WHERE id=$3`, rating, comment, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (p *PostgresStore) SetFare(ctx context.Context, id int64, fare float64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET fare=$1 WHERE id=$2`, fare, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (p *PostgresStore) RidesByRider(ctx context.Context, riderID string) ([]models.Ride, error) {
	return p.listRides(ctx, `SELECT `+rideColumns+` FROM rides WHERE rider_id=$1 ORDER BY created_at DESC`, riderID)
}

func (p *PostgresStore) RidesByDriver(ctx context.Context, driverID string) ([]models.Ride, error) {
	return p.listRides(ctx, `SELECT `+rideColumns+` FROM rides WHERE driver_id=$1 ORDER BY created_at DESC`, driverID)
}

func (p *PostgresStore) DriverAverageRating(ctx context.Context, driverID string) (float64, error) {
	var avg sql.NullFloat64
	err := p.db.QueryRowContext(ctx,
		`SELECT AVG(rating) FROM rides WHERE driver_id=$1 AND rating IS NOT NULL`,
		driverID).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (p *PostgresStore) ActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		 WHERE driver_id=$1 AND status = ANY($2)
		 ORDER BY created_at DESC LIMIT 1`,
		driverID, pq.Array([]string{string(models.StatusAccepted), string(models.StatusInProgress)}))
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("no active ride for driver %s", driverID)
	}
	return r, err
}

func (p *PostgresStore) InsertEarning(ctx context.Context, e *models.Earning) error {
	return p.db.QueryRowContext(ctx,
		`INSERT INTO earnings(driver_id, ride_id, amount) VALUES($1,$2,$3)
		 RETURNING id, paid, created_at`,
		e.DriverID, e.RideID, e.Amount).Scan(&e.ID, &e.Paid, &e.CreatedAt)
}

func (p *PostgresStore) EarningForRide(ctx context.Context, rideID int64) (*models.Earning, error) {
	var e models.Earning
	var paidAt sql.NullTime
	err := p.db.QueryRowContext(ctx,
		`SELECT id, driver_id, ride_id, amount, paid, paid_at, created_at
		 FROM earnings WHERE ride_id=$1`, rideID).
		Scan(&e.ID, &e.DriverID, &e.RideID, &e.Amount, &e.Paid, &paidAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("no earning for ride %d", rideID)
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		e.PaidAt = &paidAt.Time
	}
	return &e, nil
}

func (p *PostgresStore) EarningsByDriver(ctx context.Context, driverID string) ([]models.Earning, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, driver_id, ride_id, amount, paid, paid_at, created_at
		 FROM earnings WHERE driver_id=$1 ORDER BY created_at DESC`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Earning
	for rows.Next() {
		var e models.Earning
		var paidAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.DriverID, &e.RideID, &e.Amount, &e.Paid, &paidAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			e.PaidAt = &paidAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkEarningsPaid(ctx context.Context, driverID string) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE earnings SET paid=TRUE, paid_at=NOW()
		 WHERE driver_id=$1 AND paid=FALSE`, driverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return p.db.QueryRowContext(ctx,
		`INSERT INTO users(id, name, phone, password) VALUES($1,$2,$3,$4) RETURNING created_at`,
		u.ID, u.Name, u.Phone, u.Password).Scan(&u.CreatedAt)
}

func (p *PostgresStore) UserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, password, created_at FROM users WHERE phone=$1`, phone).
		Scan(&u.ID, &u.Name, &u.Phone, &u.Password, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("user with phone %s", phone)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) listRides(ctx context.Context, query string, arg any) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID sql.NullString
	var rating sql.NullInt64
	var comment sql.NullString
	var fare sql.NullFloat64
	err := row.Scan(&r.ID, &r.RiderID, &driverID, &r.OriginLat, &r.OriginLng,
		&r.DestLat, &r.DestLng, &r.Status, &rating, &comment, &fare, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	r.Comment = comment.String
	if fare.Valid {
		v := fare.Float64
		r.Fare = &v
	}
	return &r, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFoundf("ride %d", id)
	}
	return nil
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
