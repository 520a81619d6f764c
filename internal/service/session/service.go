package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// Service orchestrates login and logout on top of the credential store and
// the presence registry.
type Service struct {
	auth     *auth.Service
	registry *presence.Registry
	log      *zerolog.Logger
}

// New creates a session service.
func New(authSvc *auth.Service, registry *presence.Registry, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{auth: authSvc, registry: registry, log: logger}
}

// Register creates an account. It does not log the user in.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	return s.auth.Register(ctx, username, password)
}

// Login checks credentials and admits a new session. A user who already holds
// a session gets presence.ErrAlreadyLoggedIn; the existing session is kept.
func (s *Service) Login(ctx context.Context, username, password string) (string, *core.Session, error) {
	user, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return "", nil, err
	}

	sess, err := s.registry.Admit(ctx, user, "")
	if err != nil {
		if errors.Is(err, presence.ErrAlreadyLoggedIn) {
			s.log.Info().Str("username", user.Username).Msg("login rejected: session already active")
		}
		return "", nil, err
	}

	token, err := s.auth.IssueToken(user, sess.Token)
	if err != nil {
		if relErr := s.registry.Release(ctx, sess); relErr != nil {
			s.log.Error().Err(relErr).Int64("user_id", user.ID).Msg("release after token failure")
		}
		return "", nil, err
	}
	return token, sess, nil
}

// Logout ends the session the claims were issued for.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.registry.ReleaseToken(ctx, claims.UserID, claims.SessionToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Str("username", claims.Username).Msg("user logged out")
	return nil
}
