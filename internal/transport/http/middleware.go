package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
)

const (
	// ContextKeyClaims is the context key for the validated token claims.
	ContextKeyClaims = "claims"
	// ContextKeySession is the context key for the caller's presence session.
	ContextKeySession = "session"
)

// AuthMiddleware validates the bearer token and resolves the presence session
// it was issued for. Each authenticated request counts as activity.
func AuthMiddleware(authService *auth.Service, registry *presence.Registry, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request)
		if !ok {
			logger.Debug().Msg("missing or malformed authorization header")
			abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "missing authorization header")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid token")
			return
		}

		sess, err := registry.Lookup(c.Request.Context(), claims.UserID, claims.SessionToken)
		if err != nil {
			status, code := statusFor(err)
			if status == http.StatusInternalServerError {
				logger.Error().Err(err).Int64("user_id", claims.UserID).Msg("lookup session")
			}
			abortWithError(c, status, code, messageFor(code, err))
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeySession, sess)
		c.Next()
	}
}

// bearerToken reads "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func sessionFrom(c *gin.Context) (*core.Session, *auth.Claims, bool) {
	sv, ok1 := c.Get(ContextKeySession)
	cv, ok2 := c.Get(ContextKeyClaims)
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	sess, ok1 := sv.(*core.Session)
	claims, ok2 := cv.(*auth.Claims)
	return sess, claims, ok1 && ok2
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
