package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// UserLookup resolves usernames named in event payloads.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// Options tunes message handling.
type Options struct {
	// MaxMessageLength rejects longer bodies; zero disables the limit.
	MaxMessageLength int
	// Now stamps read receipts; defaults to time.Now.
	Now func() time.Time
}

type handlerFunc func(ctx context.Context, sess *core.Session, data json.RawMessage) error

// Dispatcher routes inbound socket events to their handlers. Handlers touch
// only the message store, user lookups and the room router.
type Dispatcher struct {
	users    UserLookup
	messages store.MessageStore
	router   *core.Router
	opts     Options
	log      *zerolog.Logger

	handlers map[string]handlerFunc
}

// NewDispatcher builds the dispatch table.
func NewDispatcher(users UserLookup, messages store.MessageStore, router *core.Router, opts Options, logger *zerolog.Logger) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	d := &Dispatcher{
		users:    users,
		messages: messages,
		router:   router,
		opts:     opts,
		log:      logger,
	}
	d.handlers = map[string]handlerFunc{
		proto.InboundJoinUser:             d.joinUser,
		proto.InboundJoin:                 d.join,
		proto.InboundLeave:                d.leave,
		proto.InboundSendMessage:          d.sendMessage,
		proto.InboundSendPrivateMessage:   d.sendPrivateMessage,
		proto.InboundJoinPrivate:          d.joinPrivate,
		proto.InboundRejectPrivateMessage: d.rejectPrivateMessage,
		proto.InboundMarkRead:             d.markRead,
	}
	return d
}

// JoinDefaults subscribes a freshly connected session to its inbox and the
// common channel.
func (d *Dispatcher) JoinDefaults(sess *core.Session) {
	d.router.Join(sess, core.UserRoom(sess.Username))
	d.router.Join(sess, core.CommonRoom)
}

// Dispatch handles one inbound event. Failures are reported to the session as
// error events and never returned to the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *core.Session, in proto.Inbound) {
	h, ok := d.handlers[in.Event]
	if !ok {
		d.fail(sess, in.Event, core.NewError(core.ErrCodeUnknownEvent, "unknown event "+in.Event))
		return
	}
	if err := h(ctx, sess, in.Data); err != nil {
		d.fail(sess, in.Event, err)
	}
}

func (d *Dispatcher) fail(sess *core.Session, event string, err error) {
	var ce *core.CoreError
	switch {
	case errors.As(err, &ce):
	case errors.Is(err, store.ErrValidation):
		ce = core.NewError(core.ErrCodeValidation, store.ErrValidation.Error())
	case errors.Is(err, store.ErrNotFound):
		ce = core.NewError(core.ErrCodeNotFound, "not found")
	default:
		d.log.Error().Err(err).Str("event", event).Str("user", sess.Username).Msg("handle event")
		ce = core.NewError(core.ErrCodeInternal, "internal error")
	}
	if !sess.Deliver(ErrorEvent(ce.Code, ce.Message)) {
		d.log.Warn().Str("user", sess.Username).Str("code", ce.Code).Msg("error event dropped")
	}
}

// ErrorEvent builds an error event for a single session.
func ErrorEvent(code, msg string) *core.Event {
	return &core.Event{
		Name: core.EventError,
		Data: proto.ErrorPayload{Code: code, Error: msg},
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return core.NewError(core.ErrCodeBadRequest, "missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.NewError(core.ErrCodeBadRequest, "malformed data")
	}
	return nil
}

// requireCaller checks that a username field names the session's own user.
func requireCaller(sess *core.Session, field, username string) error {
	if username == "" {
		return core.NewError(core.ErrCodeBadRequest, field+" is required")
	}
	if username != sess.Username {
		return core.NewError(core.ErrCodeForbidden, field+" must be the logged in user")
	}
	return nil
}

func (d *Dispatcher) lookup(ctx context.Context, field, username string) (*store.User, error) {
	if username == "" {
		return nil, core.NewError(core.ErrCodeBadRequest, field+" is required")
	}
	user, err := d.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.NewError(core.ErrCodeNotFound, "user "+username+" not found")
		}
		return nil, err
	}
	return user, nil
}
