package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

var (
	// ErrAlreadyLoggedIn is returned when the user already holds a session token.
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	// ErrSessionExpired is returned when a session was idle past the timeout.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid is returned when a token does not match the active session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrAlreadyConnected is returned when a second connection targets one session.
	ErrAlreadyConnected = errors.New("session already connected")
)

// Config tunes the registry.
type Config struct {
	// IdleTimeout releases sessions without activity for longer than this.
	IdleTimeout time.Duration
	// EventBuffer is the size of each session's outbound queue.
	EventBuffer int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Registry tracks each user's single active session.
type Registry struct {
	users  store.UserStore
	router *core.Router
	cfg    Config
	log    *zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*core.Session
	locks    userLocks
}

// NewRegistry creates a registry persisting tokens through users and releasing
// memberships through router.
func NewRegistry(users store.UserStore, router *core.Router, cfg Config, logger *zerolog.Logger) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		users:    users,
		router:   router,
		cfg:      cfg,
		log:      logger,
		sessions: make(map[int64]*core.Session),
		locks:    userLocks{m: make(map[int64]*userLock)},
	}
}

// Admit creates the user's session. It fails with ErrAlreadyLoggedIn while
// another session holds the token, whether or not its connection is still alive.
// A holder idle past the timeout has expired and is released first.
// connID may be empty when the socket attaches later.
func (r *Registry) Admit(ctx context.Context, user *store.User, connID string) (*core.Session, error) {
	unlock := r.locks.lock(user.ID)
	defer unlock()

	token := uuid.NewString()
	now := r.cfg.Now()
	err := r.users.ClaimSession(ctx, user.ID, token, now)
	if errors.Is(err, store.ErrSessionActive) {
		expired, expErr := r.expireStaleLocked(ctx, user.ID, now)
		if expErr != nil {
			return nil, expErr
		}
		if !expired {
			return nil, ErrAlreadyLoggedIn
		}
		err = r.users.ClaimSession(ctx, user.ID, token, now)
		if errors.Is(err, store.ErrSessionActive) {
			return nil, ErrAlreadyLoggedIn
		}
	}
	if err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}

	sess := core.NewSession(token, user.ID, user.Username, r.cfg.EventBuffer, now)
	if connID != "" {
		sess.Attach(connID)
	}
	r.put(sess)

	r.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("session admitted")
	return sess, nil
}

// Attach binds a connection to the session identified by token. A session whose
// token is persisted but not held in memory (after a restart) is rebuilt.
func (r *Registry) Attach(ctx context.Context, userID int64, token, connID string) (*core.Session, error) {
	unlock := r.locks.lock(userID)
	defer unlock()

	sess, err := r.resolveLocked(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if sess.ConnID() != "" {
		return nil, ErrAlreadyConnected
	}

	sess.Attach(connID)
	r.touchLocked(ctx, sess, r.cfg.Now())
	return sess, nil
}

// Lookup validates a token and records activity, without attaching.
func (r *Registry) Lookup(ctx context.Context, userID int64, token string) (*core.Session, error) {
	unlock := r.locks.lock(userID)
	defer unlock()

	sess, err := r.resolveLocked(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	r.touchLocked(ctx, sess, r.cfg.Now())
	return sess, nil
}

// Touch records activity for sess. If it has been idle past the timeout it is
// released and ErrSessionExpired is returned.
func (r *Registry) Touch(ctx context.Context, sess *core.Session) error {
	unlock := r.locks.lock(sess.UserID)
	defer unlock()

	now := r.cfg.Now()
	if sess.IdleFor(r.cfg.IdleTimeout, now) {
		if err := r.releaseLocked(ctx, sess, ErrSessionExpired); err != nil {
			r.log.Error().Err(err).Int64("user_id", sess.UserID).Msg("release expired session")
		}
		return ErrSessionExpired
	}
	r.touchLocked(ctx, sess, now)
	return nil
}

// Release destroys the session: clears the persisted token, drops all room
// memberships and closes the outbound queue. Safe to call more than once.
func (r *Registry) Release(ctx context.Context, sess *core.Session) error {
	unlock := r.locks.lock(sess.UserID)
	defer unlock()

	return r.releaseLocked(ctx, sess, nil)
}

// Session returns the live session of userID, if any.
func (r *Registry) Session(userID int64) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Online returns the number of live sessions.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) resolveLocked(ctx context.Context, userID int64, token string) (*core.Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	if sess, ok := r.Session(userID); ok {
		if sess.Token != token {
			return nil, ErrSessionInvalid
		}
		if sess.IdleFor(r.cfg.IdleTimeout, r.cfg.Now()) {
			if err := r.releaseLocked(ctx, sess, ErrSessionExpired); err != nil {
				r.log.Error().Err(err).Int64("user_id", userID).Msg("release expired session")
			}
			return nil, ErrSessionExpired
		}
		return sess, nil
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.ActiveSession == "" || user.ActiveSession != token {
		return nil, ErrSessionInvalid
	}
	now := r.cfg.Now()
	if r.persistedIdle(user, now) {
		if err := r.users.ClearSession(ctx, userID); err != nil {
			return nil, fmt.Errorf("clear session: %w", err)
		}
		r.log.Info().Int64("user_id", userID).Msg("persisted session expired")
		return nil, ErrSessionExpired
	}

	sess := core.NewSession(token, user.ID, user.Username, r.cfg.EventBuffer, now)
	r.put(sess)
	r.log.Info().Int64("user_id", user.ID).Msg("session restored from persisted token")
	return sess, nil
}

// expireStaleLocked releases the session holding userID's token if it has been
// idle past the timeout. Reports whether the token is free to claim again.
func (r *Registry) expireStaleLocked(ctx context.Context, userID int64, now time.Time) (bool, error) {
	if sess, ok := r.Session(userID); ok {
		if !sess.IdleFor(r.cfg.IdleTimeout, now) {
			return false, nil
		}
		if err := r.releaseLocked(ctx, sess, ErrSessionExpired); err != nil {
			return false, err
		}
		return true, nil
	}

	// No session in memory: the token was persisted by an earlier process.
	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.ActiveSession != "" && !r.persistedIdle(user, now) {
		return false, nil
	}
	if err := r.users.ClearSession(ctx, userID); err != nil {
		return false, fmt.Errorf("clear session: %w", err)
	}
	r.log.Info().Int64("user_id", userID).Msg("stale persisted session expired")
	return true, nil
}

// persistedIdle judges a token with no session in memory by its last_seen.
// Tokens without one predate activity tracking and count as idle.
func (r *Registry) persistedIdle(user *store.User, now time.Time) bool {
	if r.cfg.IdleTimeout <= 0 {
		return false
	}
	return user.LastSeen.IsZero() || now.Sub(user.LastSeen) > r.cfg.IdleTimeout
}

// touchLocked records activity in memory and on the user row. A failed write
// only makes a later restart judge the session older than it is.
func (r *Registry) touchLocked(ctx context.Context, sess *core.Session, now time.Time) {
	sess.Touch(now)
	if err := r.users.TouchSession(ctx, sess.UserID, sess.Token, now); err != nil {
		r.log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("persist session activity")
	}
}

// releaseLocked ends sess; cause is handed to the connection through the session.
func (r *Registry) releaseLocked(ctx context.Context, sess *core.Session, cause error) error {
	r.mu.Lock()
	current, ok := r.sessions[sess.UserID]
	superseded := ok && current != sess
	if ok && current == sess {
		delete(r.sessions, sess.UserID)
	}
	r.mu.Unlock()

	sess.CloseWithCause(cause)
	if r.router != nil {
		r.router.LeaveAll(sess)
	}

	// A newer session owns the persisted token now; leave it alone.
	if superseded {
		return nil
	}

	if err := r.users.ClearSession(ctx, sess.UserID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	r.log.Info().Int64("user_id", sess.UserID).Str("username", sess.Username).Msg("session released")
	return nil
}

func (r *Registry) put(sess *core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sess.UserID]; ok && old != sess {
		old.Close()
		if r.router != nil {
			r.router.LeaveAll(old)
		}
	}
	r.sessions[sess.UserID] = sess
}

// ReleaseToken clears the persisted session of userID if token still matches it.
// Used by logout when the caller only holds the token.
func (r *Registry) ReleaseToken(ctx context.Context, userID int64, token string) error {
	unlock := r.locks.lock(userID)
	defer unlock()

	if sess, ok := r.Session(userID); ok {
		if sess.Token != token {
			return ErrSessionInvalid
		}
		return r.releaseLocked(ctx, sess, nil)
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.ActiveSession != token {
		return ErrSessionInvalid
	}
	if err := r.users.ClearSession(ctx, userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
