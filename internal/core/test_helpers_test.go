package core

import (
	"testing"
	"time"
)

func mustEvent(t *testing.T, s *Session, name string) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("session %s closed while waiting for %q", s.Username, name)
			}
			if ev != nil && ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event %q not received by %s", name, s.Username)
			return nil
		}
	}
}

func noEvent(t *testing.T, s *Session) {
	t.Helper()

	select {
	case ev, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event for %s: %+v", s.Username, ev)
		}
	default:
	}
}

func newSession(id int64, name string) *Session {
	return NewSession("tok-"+name, id, name, 8, time.Now())
}
