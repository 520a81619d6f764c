package core

import (
	"sort"
	"sync"
	"time"
)

// Session is the live binding between an authenticated user and one connection.
type Session struct {
	Token    string
	UserID   int64
	Username string

	mu           sync.Mutex
	connID       string
	rooms        map[string]struct{}
	lastActivity time.Time
	events       chan *Event
	closed       bool
	cause        error
}

// NewSession constructs a session with an outbound queue of the given size.
func NewSession(token string, userID int64, username string, buffer int, now time.Time) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		Token:        token,
		UserID:       userID,
		Username:     username,
		rooms:        make(map[string]struct{}),
		lastActivity: now,
		events:       make(chan *Event, buffer),
	}
}

// Events is the outbound queue drained by the connection writer. It is closed
// when the session is released.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Deliver queues an event without blocking. Returns false if the session is
// closed or its queue is full.
func (s *Session) Deliver(ev *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// ConnID returns the attached connection id, empty when no socket is attached.
func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Attach binds the session to a connection id.
func (s *Session) Attach(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connID = connID
}

// LastActivity returns the time of the last inbound request or event.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// IdleFor reports whether the session has been inactive longer than limit.
func (s *Session) IdleFor(limit time.Duration, now time.Time) bool {
	if limit <= 0 {
		return false
	}
	return now.Sub(s.LastActivity()) > limit
}

// Rooms returns the joined room ids in sorted order.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// InRoom reports whether the session has joined room.
func (s *Session) InRoom(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

// Closed reports whether the session has been released.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops delivery and closes the outbound queue. Idempotent.
func (s *Session) Close() {
	s.CloseWithCause(nil)
}

// CloseWithCause is Close recording why the session ended. Only the first
// call has an effect.
func (s *Session) CloseWithCause(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cause = cause
	close(s.events)
}

// Cause returns the error the session was closed with, if any.
func (s *Session) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) addRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = struct{}{}
}

func (s *Session) removeRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}
