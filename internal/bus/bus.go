package bus

import "context"

// Lifecycle channels. Payloads are JSON snapshots of the ride (or the
// driver location for ChannelDriverLocation).
const (
	ChannelRideRequested  = "ride_requested"
	ChannelRideMatched    = "ride_matched"
	ChannelRideAccepted   = "ride_accepted"
	ChannelRideStarted    = "ride_started"
	ChannelRideCompleted  = "ride_completed"
	ChannelRideCancelled  = "ride_cancelled"
	ChannelDriverLocation = "driver_location"
)

// Handler receives one published message. Handlers run concurrently
// with publishers; a slow handler delays only its own side effects.
type Handler func(ctx context.Context, payload []byte)

// Bus is an at-most-once fan-out channel between lifecycle producers
// and consumers. Messages published while a subscriber is away are
// lost; there is no ack and no replay. Per channel, a subscriber sees
// messages in publish order.
type Bus interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channel string, h Handler) error
}
