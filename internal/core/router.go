package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Router maps room ids to the sessions currently joined to them.
// Sessions own their joined-room list; the router only keeps back-references
// for fan-out and never controls session lifetime.
type Router struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	log   *zerolog.Logger
}

// NewRouter creates an empty router. A nil logger disables logging.
func NewRouter(logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		rooms: make(map[string]*Room),
		log:   logger,
	}
}

// Join subscribes the session to room. Returns false if it was already joined
// or the session is closed.
func (r *Router) Join(s *Session, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Release closes the session before LeaveAll, so checking under the lock
	// keeps a racing join from leaving a stale membership behind.
	if s.Closed() {
		return false
	}

	rm, ok := r.rooms[room]
	if !ok {
		rm = NewRoom(room)
		r.rooms[room] = rm
	}
	if !rm.AddSession(s) {
		return false
	}
	s.addRoom(room)

	r.log.Debug().Str("room", room).Str("user", s.Username).Msg("joined room")
	return true
}

// Leave unsubscribes the session from room. Returns false if it was not joined.
func (r *Router) Leave(s *Session, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(s, room)
}

func (r *Router) leaveLocked(s *Session, room string) bool {
	s.removeRoom(room)

	rm, ok := r.rooms[room]
	if !ok || !rm.RemoveSession(s) {
		return false
	}
	if rm.Empty() {
		delete(r.rooms, room)
	}

	r.log.Debug().Str("room", room).Str("user", s.Username).Msg("left room")
	return true
}

// LeaveAll drops every membership the session holds.
func (r *Router) LeaveAll(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range s.Rooms() {
		r.leaveLocked(s, room)
	}
}

// Publish delivers event to every session joined to room, the sender included.
// Delivery order across members is unspecified. Returns the delivered count.
func (r *Router) Publish(room string, event *Event) int {
	event.Room = room

	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[room]
	if !ok {
		return 0
	}

	delivered, dropped := rm.Broadcast(event)
	if dropped > 0 {
		r.log.Warn().Str("room", room).Str("event", event.Name).Int("dropped", dropped).Msg("slow consumers skipped")
	}
	return delivered
}

// Members returns the number of sessions joined to room.
func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rm, ok := r.rooms[room]; ok {
		return rm.Len()
	}
	return 0
}
