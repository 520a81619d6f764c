package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, presence.ErrAlreadyLoggedIn), errors.Is(err, presence.ErrAlreadyConnected):
		return http.StatusConflict, core.ErrCodeAlreadyLoggedIn
	case errors.Is(err, presence.ErrSessionExpired):
		return http.StatusUnauthorized, core.ErrCodeSessionExpired
	case errors.Is(err, presence.ErrSessionInvalid),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, core.ErrCodeUnauthorized
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, core.ErrCodeConflict
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, store.ErrValidation),
		errors.Is(err, blob.ErrUnsupportedType):
		return http.StatusBadRequest, core.ErrCodeValidation
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, core.ErrCodeNotFound
	default:
		return http.StatusInternalServerError, core.ErrCodeInternal
	}
}

// messageFor hides internal error text from clients.
func messageFor(code string, err error) string {
	if code == core.ErrCodeInternal {
		return "internal server error"
	}
	return err.Error()
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	return proto.Outbound{Event: event.Name, Data: event.Data}
}
