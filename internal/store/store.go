package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a message has neither text nor attachment.
	ErrValidation = errors.New("message must have text or an attachment")
	// ErrDuplicate is returned when a unique constraint (username) is violated.
	ErrDuplicate = errors.New("already exists")
	// ErrSessionActive is returned when a session token is already set for the user.
	ErrSessionActive = errors.New("session already active")
)

// User represents a registered account.
type User struct {
	ID            int64
	Username      string
	PasswordHash  string
	ActiveSession string    // empty when nobody is logged in
	LastSeen      time.Time // last activity of ActiveSession, zero when unknown
	CreatedAt     time.Time
}

// AttachmentKind classifies uploaded media.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
)

// Attachment points at an uploaded blob.
type Attachment struct {
	URL  string
	Kind AttachmentKind
}

// ChannelMessage is a message posted to the common channel.
type ChannelMessage struct {
	ID         int64
	UserID     int64
	Username   string // snapshot at send time
	Body       string
	CreatedAt  time.Time
	ReadAt     *time.Time
	Attachment *Attachment
}

// PrivateMessage is a message between two users.
type PrivateMessage struct {
	ID                int64
	SenderID          int64
	SenderUsername    string
	RecipientID       int64
	RecipientUsername string
	Body              string
	CreatedAt         time.Time
	ReadAt            *time.Time
	Attachment        *Attachment
}

// ValidateContent checks that a message carries text or an attachment.
func ValidateContent(body string, att *Attachment) error {
	if strings.TrimSpace(body) == "" && (att == nil || att.URL == "") {
		return ErrValidation
	}
	return nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ClaimSession stores token as the user's active session, last seen at,
	// only if none is set. Returns ErrSessionActive when a token is already present.
	ClaimSession(ctx context.Context, userID int64, token string, at time.Time) error

	// TouchSession records activity at for token while it is the active session.
	TouchSession(ctx context.Context, userID int64, token string, at time.Time) error

	// ClearSession removes the user's active session token. Idempotent.
	ClearSession(ctx context.Context, userID int64) error
}

// MessageStore handles channel and private message persistence.
type MessageStore interface {
	AppendChannel(ctx context.Context, authorID int64, body string, att *Attachment) (*ChannelMessage, error)
	AppendPrivate(ctx context.Context, senderID, recipientID int64, body string, att *Attachment) (*PrivateMessage, error)

	// ListChannel returns all channel messages, oldest first.
	ListChannel(ctx context.Context) ([]*ChannelMessage, error)

	// ListPrivate returns the conversation between a and b in both directions, oldest first.
	ListPrivate(ctx context.Context, a, b int64) ([]*PrivateMessage, error)

	// MarkChannelRead sets read_at if unset and readerID is not the author.
	MarkChannelRead(ctx context.Context, id, readerID int64, at time.Time) error

	// MarkPrivateRead sets read_at if unset and readerID is the recipient.
	MarkPrivateRead(ctx context.Context, id, readerID int64, at time.Time) error

	// MarkChannelReadAll marks every unread channel message not written by readerID.
	MarkChannelReadAll(ctx context.Context, readerID int64, at time.Time) (int64, error)

	// MarkConversationRead marks every unread message sent by peerID to readerID.
	MarkConversationRead(ctx context.Context, readerID, peerID int64, at time.Time) (int64, error)

	// PurgeReadBefore deletes messages of both kinds read before cutoff.
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
