package core

import (
	"strconv"
	"strings"
)

// Room id prefixes and the fixed common channel id.
const (
	CommonRoom    = "common"
	userPrefix    = "user:"
	privatePrefix = "private:"
)

// UserRoom is the personal inbox room of username.
func UserRoom(username string) string {
	return userPrefix + username
}

// PrivateRoom is the conversation room of two users. The pair is sorted so both
// participants compute the same id.
func PrivateRoom(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return privatePrefix + strconv.FormatInt(a, 10) + "_" + strconv.FormatInt(b, 10)
}

// CanJoin reports whether a session may subscribe to room. Inboxes are owner-only
// and private rooms are limited to their two participants; other ids are open.
func CanJoin(s *Session, room string) bool {
	switch {
	case strings.HasPrefix(room, userPrefix):
		return room == UserRoom(s.Username)
	case strings.HasPrefix(room, privatePrefix):
		pair := strings.SplitN(strings.TrimPrefix(room, privatePrefix), "_", 2)
		if len(pair) != 2 {
			return false
		}
		a, errA := strconv.ParseInt(pair[0], 10, 64)
		b, errB := strconv.ParseInt(pair[1], 10, 64)
		if errA != nil || errB != nil || room != PrivateRoom(a, b) {
			return false
		}
		return a == s.UserID || b == s.UserID
	default:
		return true
	}
}

// Room groups sessions subscribed to the same id.
type Room struct {
	Name     string
	sessions map[*Session]struct{}
}

// NewRoom constructs a room with no sessions.
func NewRoom(name string) *Room {
	return &Room{
		Name:     name,
		sessions: make(map[*Session]struct{}),
	}
}

// AddSession inserts a session into the room. Returns true if newly added.
func (r *Room) AddSession(s *Session) bool {
	if _, exists := r.sessions[s]; exists {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

// RemoveSession deletes a session from the room. Returns true if removed.
func (r *Room) RemoveSession(s *Session) bool {
	if _, exists := r.sessions[s]; !exists {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Broadcast sends an event to all sessions in the room and returns how many
// accepted it. Slow consumers are skipped.
func (r *Room) Broadcast(event *Event) (delivered, dropped int) {
	for s := range r.sessions {
		if s.Deliver(event) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Len returns the number of sessions in the room.
func (r *Room) Len() int {
	return len(r.sessions)
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.sessions) == 0
}
