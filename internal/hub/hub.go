package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/example/ride-dispatch/internal/observability"
)

// Envelope is the wire frame for live-session traffic in both
// directions: an event name plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is one live connection owned by a logical identity. Writes
// go through a buffered channel drained by a single write pump, so
// concurrent broadcasts never interleave on the socket.
type Session struct {
	Identity string
	Role     string

	send chan []byte
	once sync.Once
}

func newSession(identity, role string) *Session {
	return &Session{Identity: identity, Role: role, send: make(chan []byte, 32)}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub maps room names to live sessions. A room is any broadcast group:
// a logical identity, or the shared drivers room. Membership is
// deterministic on connect and fully dropped on disconnect; a dropped
// session must re-register to receive anything again.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Session]struct{}
	logger *slog.Logger
}

const DriversRoom = "drivers"

func New(logger *slog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*Session]struct{}), logger: logger}
}

// Register joins the session to its identity room and, for drivers,
// the shared drivers room.
func (h *Hub) Register(s *Session) {
	h.Join(s.Identity, s)
	if s.Role == "driver" {
		h.Join(DriversRoom, s)
	}
	observability.LiveSessionsActive.Inc()
}

// Unregister removes the session from every room and closes its send
// channel. Pending room bindings are lost with the session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	for room, members := range h.rooms {
		if _, ok := members[s]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()
	s.close()
	observability.LiveSessionsActive.Dec()
}

func (h *Hub) Join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
}

// BindRoom joins every session owned by identity into room. Used to
// bind a rider's sessions into the driver's room on acceptance so
// direct rider-driver broadcasts work afterwards.
func (h *Hub) BindRoom(identity, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	owned := h.rooms[identity]
	if len(owned) == 0 {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	for s := range owned {
		if s.Identity == identity {
			members[s] = struct{}{}
		}
	}
}

// Broadcast sends an event to every session in room. Sessions whose
// buffers are full miss the message rather than stalling the sender.
func (h *Hub) Broadcast(room, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Error("broadcast encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[room] {
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("dropping message for slow session", "identity", s.Identity, "event", event)
		}
	}
}

// Send delivers an event to a single session.
func (h *Hub) Send(s *Session, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Error("send encode failed", "event", event, "error", err)
		return
	}
	select {
	case s.send <- msg:
	default:
		h.logger.Warn("dropping message for slow session", "identity", s.Identity, "event", event)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
