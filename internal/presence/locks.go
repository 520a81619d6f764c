package presence

import "sync"

// userLocks serializes presence changes per user id.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutex of id and returns its release func.
func (l *userLocks) lock(id int64) func() {
	l.mu.Lock()
	ul, ok := l.m[id]
	if !ok {
		ul = &userLock{}
		l.m[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
