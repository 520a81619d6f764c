package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	minUsernameLen = 2
	maxUsernameLen = 20
	minPasswordLen = 6
)

// Service is the credential store: registration, password checks and tokens.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a user with a hashed password. The username is trimmed
// and must not contain the room id separator.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, ErrInvalidUsername
	}
	if strings.ContainsAny(username, ": \t") {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the user if the password matches.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs an access token for user bound to the presence session token.
func (s *Service) IssueToken(user *store.User, sessionToken string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, sessionToken)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
