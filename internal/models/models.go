package models

import "time"

// Status is the ride lifecycle state. Transitions between statuses are
// owned by the lifecycle service; nothing else writes them.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusMatched    Status = "matched"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID        int64     `json:"id"`
	RiderID   string    `json:"rider_id"`
	DriverID  string    `json:"driver_id,omitempty"`
	OriginLat float64   `json:"origin_lat"`
	OriginLng float64   `json:"origin_lng"`
	DestLat   float64   `json:"dest_lat"`
	DestLng   float64   `json:"dest_lng"`
	Status    Status    `json:"status"`
	Rating    *int      `json:"rating,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Fare      *float64  `json:"fare,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DriverLocation is the last reported position of a driver. Ts is unix
// milliseconds at report time; staleness is always judged against Ts,
// never against when the snapshot was read.
type DriverLocation struct {
	DriverID string  `json:"driver_id,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Ts       int64   `json:"ts"`
}

// NearbyDriver is one proximity query result, annotated with the
// great-circle distance from the query center.
type NearbyDriver struct {
	DriverID   string  `json:"driverId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

type Earning struct {
	ID        int64      `json:"id"`
	DriverID  string     `json:"driver_id"`
	RideID    int64      `json:"ride_id"`
	Amount    float64    `json:"amount"`
	Paid      bool       `json:"paid"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Notice is a structured push notification delivered over a live session.
type Notice struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}
