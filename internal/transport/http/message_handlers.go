package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/chat"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// MessageHandlers serves message history. Opening a history view marks the
// messages shown to the caller as read.
type MessageHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// ChannelHistory returns the common channel, oldest first.
// GET /api/messages
func (h *MessageHandlers) ChannelHistory(c *gin.Context) {
	sess, _, ok := sessionFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "unauthorized")
		return
	}
	ctx := c.Request.Context()

	msgs, err := h.store.ListChannel(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list channel messages")
		abortWithError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		return
	}

	if _, err := h.store.MarkChannelReadAll(ctx, sess.UserID, time.Now()); err != nil {
		h.log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("failed to mark channel read")
	}

	response := make([]proto.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		response = append(response, chat.ChannelPayload(msg))
	}
	c.JSON(http.StatusOK, response)
}

// PrivateHistory returns the conversation with :username, oldest first.
// GET /api/private/:username
func (h *MessageHandlers) PrivateHistory(c *gin.Context) {
	sess, _, ok := sessionFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "unauthorized")
		return
	}
	ctx := c.Request.Context()

	peer, err := h.store.GetUserByUsername(ctx, c.Param("username"))
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("failed to load peer")
		}
		abortWithError(c, status, code, "user not found")
		return
	}

	msgs, err := h.store.ListPrivate(ctx, sess.UserID, peer.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("peer_id", peer.ID).Msg("failed to list private messages")
		abortWithError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		return
	}

	if _, err := h.store.MarkConversationRead(ctx, sess.UserID, peer.ID, time.Now()); err != nil {
		h.log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("failed to mark conversation read")
	}

	response := make([]proto.PrivateMessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		response = append(response, chat.PrivatePayload(msg))
	}
	c.JSON(http.StatusOK, response)
}
