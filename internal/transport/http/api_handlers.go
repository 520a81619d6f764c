package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/service/session"
)

// APIHandlers provides the account endpoints.
type APIHandlers struct {
	sessions *session.Service
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(sessions *session.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		sessions: sessions,
		log:      logger,
	}
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse describes a registered account.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		abortWithError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	user, err := h.sessions.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
		}
		abortWithError(c, status, code, messageFor(code, err))
		return
	}

	h.log.Info().Str("username", user.Username).Msg("user registered successfully")
	c.JSON(http.StatusCreated, UserResponse{ID: user.ID, Username: user.Username})
}

// Login handles user login. A user with an active session is refused with 409.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		abortWithError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	token, _, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		}
		abortWithError(c, status, code, messageFor(code, err))
		return
	}

	h.log.Info().Str("username", req.Username).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// Logout releases the caller's session.
// POST /api/logout
func (h *APIHandlers) Logout(c *gin.Context) {
	_, claims, ok := sessionFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "unauthorized")
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), claims); err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("failed to logout user")
		}
		abortWithError(c, status, code, messageFor(code, err))
		return
	}

	c.Status(http.StatusNoContent)
}
