package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/chat"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

var errSessionEnded = errors.New("session ended")

// WSOptions tunes socket handling.
type WSOptions struct {
	RateLimitPerMinute int
	MaxMessageLength   int
}

// WSHandler upgrades authenticated HTTP connections and bridges them to the
// presence session the access token was issued for.
type WSHandler struct {
	auth       *auth.Service
	registry   *presence.Registry
	dispatcher *chat.Dispatcher
	opts       WSOptions
	log        *zerolog.Logger

	conns sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(authService *auth.Service, registry *presence.Registry, dispatcher *chat.Dispatcher, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		auth:       authService,
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		log:        logger,
	}
}

// Wait blocks until every open connection has released its session or ctx ends.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	h.conns.Add(1)
	defer h.conns.Done()

	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws rejected: invalid token")
		writeJSONError(w, stdhttp.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid token")
		return
	}

	connID := uuid.NewString()
	sess, err := h.registry.Attach(ctx, claims.UserID, claims.SessionToken, connID)
	if err != nil {
		status, code := statusFor(err)
		if status == stdhttp.StatusInternalServerError {
			h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("ws attach failed")
		}
		writeJSONError(w, status, code, messageFor(code, err))
		return
	}
	// Disconnect always ends the session.
	defer func() {
		if err := h.registry.Release(context.Background(), sess); err != nil {
			h.log.Error().Err(err).Str("user", sess.Username).Msg("release session on disconnect")
		}
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageLength > 0 {
		// A character escapes to at most 12 bytes of JSON (a \u surrogate pair);
		// the rest is room for the envelope and attachment fields.
		conn.SetReadLimit(int64(h.opts.MaxMessageLength)*12 + 4096)
	}

	log := h.log.With().Str("conn_id", connID).Str("user", sess.Username).Logger()
	log.Info().Msg("ws connected")

	h.dispatcher.JoinDefaults(sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess, &log)
	}()

	err = <-errCh

	status, reason := closeStatus(err)
	if errors.Is(err, presence.ErrSessionExpired) {
		noticeCtx, stop := context.WithTimeout(context.Background(), time.Second)
		expired := chat.ErrorEvent(core.ErrCodeSessionExpired, "session expired, please log in again")
		_ = wsjson.Write(noticeCtx, conn, outboundFromEvent(expired))
		stop()
	} else if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		log.Warn().Err(err).Msg("ws connection closed with error")
	}

	// Close before cancelling: a cancelled read would close with its own status.
	conn.Close(status, reason)
	cancel()
	<-errCh

	log.Info().Msg("ws disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)

	for {
		// Decoded here rather than with wsjson.Read, which closes the
		// connection on malformed JSON.
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Debug().Err(err).Msg("malformed ws frame")
			sess.Deliver(chat.ErrorEvent(core.ErrCodeBadRequest, "malformed message"))
			continue
		}

		if err := h.registry.Touch(ctx, sess); err != nil {
			if errors.Is(err, presence.ErrSessionExpired) {
				log.Info().Msg("session expired")
			}
			return err
		}

		if !limiter.allow() {
			sess.Deliver(chat.ErrorEvent(core.ErrCodeRateLimited, "too many messages"))
			continue
		}

		h.dispatcher.Dispatch(ctx, sess, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-sess.Events():
			if !ok {
				if cause := sess.Cause(); cause != nil {
					return cause
				}
				return errSessionEnded
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSONError(w stdhttp.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code})
}

// closeStatus picks the close frame for the error that ended the connection.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, presence.ErrSessionExpired):
		return websocket.StatusPolicyViolation, "session expired"
	case errors.Is(err, errSessionEnded):
		return websocket.StatusNormalClosure, "session ended"
	}
	if s := websocket.CloseStatus(err); s != -1 {
		return s, "closing"
	}
	return websocket.StatusInternalError, "connection error"
}
