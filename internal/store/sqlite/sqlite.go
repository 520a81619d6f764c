package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, ":memory:" works for tests.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single connection: writes are serialized and an in-memory db stays shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Databases created before last_seen existed.
	if err := addColumnIfMissing(db, "users", "last_seen", "INTEGER"); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	rows.Close()

	if _, err := db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func attachmentArgs(att *store.Attachment) (any, any) {
	if att == nil || att.URL == "" {
		return nil, nil
	}
	return att.URL, string(att.Kind)
}

func scanAttachment(url, kind sql.NullString) *store.Attachment {
	if !url.Valid || url.String == "" {
		return nil
	}
	return &store.Attachment{URL: url.String, Kind: store.AttachmentKind(kind.String)}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, toNanos(s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, password_hash, COALESCE(active_session, ''), last_seen, created_at`

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var lastSeen sql.NullInt64
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.ActiveSession, &lastSeen, &createdAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		user.LastSeen = fromNanos(lastSeen.Int64)
	}
	user.CreatedAt = fromNanos(createdAt)
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ClaimSession sets the active session token only when none is present.
func (s *SQLiteStore) ClaimSession(ctx context.Context, userID int64, token string, at time.Time) error {
	query := `
		UPDATE users
		SET active_session = ?, last_seen = ?
		WHERE id = ? AND active_session IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, token, toNanos(at), userID)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return store.ErrSessionActive
}

// TouchSession moves last_seen forward while token is still the active session.
func (s *SQLiteStore) TouchSession(ctx context.Context, userID int64, token string, at time.Time) error {
	query := `
		UPDATE users
		SET last_seen = ?
		WHERE id = ? AND active_session = ? AND (last_seen IS NULL OR last_seen < ?)
	`
	nanos := toNanos(at)
	if _, err := s.db.ExecContext(ctx, query, nanos, userID, token, nanos); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ClearSession removes the active session token.
func (s *SQLiteStore) ClearSession(ctx context.Context, userID int64) error {
	query := `UPDATE users SET active_session = NULL, last_seen = NULL WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// AppendChannel persists a common channel message with the author's username snapshot.
func (s *SQLiteStore) AppendChannel(ctx context.Context, authorID int64, body string, att *store.Attachment) (*store.ChannelMessage, error) {
	if err := store.ValidateContent(body, att); err != nil {
		return nil, err
	}

	fileURL, fileType := attachmentArgs(att)
	createdAt := s.now()
	query := `
		INSERT INTO channel_messages (user_id, username, body, created_at, file_url, file_type)
		SELECT id, username, ?, ?, ?, ? FROM users WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, body, toNanos(createdAt), fileURL, fileType, authorID)
	if err != nil {
		return nil, fmt.Errorf("insert channel message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("author %d: %w", authorID, store.ErrNotFound)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getChannelMessage(ctx, id)
}

const channelColumns = `id, user_id, username, body, created_at, read_at, file_url, file_type`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelMessage(row rowScanner) (*store.ChannelMessage, error) {
	var msg store.ChannelMessage
	var createdAt int64
	var readAt sql.NullInt64
	var fileURL, fileType sql.NullString
	if err := row.Scan(&msg.ID, &msg.UserID, &msg.Username, &msg.Body, &createdAt, &readAt, &fileURL, &fileType); err != nil {
		return nil, err
	}
	msg.CreatedAt = fromNanos(createdAt)
	msg.ReadAt = nullableTime(readAt)
	msg.Attachment = scanAttachment(fileURL, fileType)
	return &msg, nil
}

func (s *SQLiteStore) getChannelMessage(ctx context.Context, id int64) (*store.ChannelMessage, error) {
	query := `SELECT ` + channelColumns + ` FROM channel_messages WHERE id = ?`
	msg, err := scanChannelMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel message: %w", err)
	}
	return msg, nil
}

// AppendPrivate persists a message between two existing users.
func (s *SQLiteStore) AppendPrivate(ctx context.Context, senderID, recipientID int64, body string, att *store.Attachment) (*store.PrivateMessage, error) {
	if err := store.ValidateContent(body, att); err != nil {
		return nil, err
	}

	fileURL, fileType := attachmentArgs(att)
	query := `
		INSERT INTO private_messages (sender_id, recipient_id, body, created_at, file_url, file_type)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM users WHERE id = ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		senderID, recipientID, body, toNanos(s.now()), fileURL, fileType,
		senderID, recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("sender %d or recipient %d: %w", senderID, recipientID, store.ErrNotFound)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getPrivateMessage(ctx, id)
}

const privateSelect = `
	SELECT pm.id, pm.sender_id, su.username, pm.recipient_id, ru.username,
	       pm.body, pm.created_at, pm.read_at, pm.file_url, pm.file_type
	FROM private_messages pm
	JOIN users su ON su.id = pm.sender_id
	JOIN users ru ON ru.id = pm.recipient_id
`

func scanPrivateMessage(row rowScanner) (*store.PrivateMessage, error) {
	var msg store.PrivateMessage
	var createdAt int64
	var readAt sql.NullInt64
	var fileURL, fileType sql.NullString
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.RecipientID,
		&msg.RecipientUsername,
		&msg.Body,
		&createdAt,
		&readAt,
		&fileURL,
		&fileType,
	); err != nil {
		return nil, err
	}
	msg.CreatedAt = fromNanos(createdAt)
	msg.ReadAt = nullableTime(readAt)
	msg.Attachment = scanAttachment(fileURL, fileType)
	return &msg, nil
}

func (s *SQLiteStore) getPrivateMessage(ctx context.Context, id int64) (*store.PrivateMessage, error) {
	msg, err := scanPrivateMessage(s.db.QueryRowContext(ctx, privateSelect+` WHERE pm.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("private message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query private message: %w", err)
	}
	return msg, nil
}

// ListChannel returns every channel message in chronological order.
func (s *SQLiteStore) ListChannel(ctx context.Context) ([]*store.ChannelMessage, error) {
	query := `SELECT ` + channelColumns + ` FROM channel_messages ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query channel messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.ChannelMessage, 0)
	for rows.Next() {
		msg, err := scanChannelMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ListPrivate returns the conversation between a and b in chronological order.
func (s *SQLiteStore) ListPrivate(ctx context.Context, a, b int64) ([]*store.PrivateMessage, error) {
	query := privateSelect + `
		WHERE (pm.sender_id = ? AND pm.recipient_id = ?)
		   OR (pm.sender_id = ? AND pm.recipient_id = ?)
		ORDER BY pm.created_at ASC, pm.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query private messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.PrivateMessage, 0)
	for rows.Next() {
		msg, err := scanPrivateMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan private message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkChannelRead sets read_at once, and never for the author.
func (s *SQLiteStore) MarkChannelRead(ctx context.Context, id, readerID int64, at time.Time) error {
	query := `
		UPDATE channel_messages
		SET read_at = ?
		WHERE id = ? AND read_at IS NULL AND user_id <> ?
	`
	if _, err := s.db.ExecContext(ctx, query, toNanos(at), id, readerID); err != nil {
		return fmt.Errorf("mark channel message read: %w", err)
	}
	return nil
}

// MarkPrivateRead sets read_at once, and only for the recipient.
func (s *SQLiteStore) MarkPrivateRead(ctx context.Context, id, readerID int64, at time.Time) error {
	query := `
		UPDATE private_messages
		SET read_at = ?
		WHERE id = ? AND read_at IS NULL AND recipient_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, toNanos(at), id, readerID); err != nil {
		return fmt.Errorf("mark private message read: %w", err)
	}
	return nil
}

// MarkChannelReadAll marks every unread channel message written by someone else.
func (s *SQLiteStore) MarkChannelReadAll(ctx context.Context, readerID int64, at time.Time) (int64, error) {
	query := `
		UPDATE channel_messages
		SET read_at = ?
		WHERE read_at IS NULL AND user_id <> ?
	`
	result, err := s.db.ExecContext(ctx, query, toNanos(at), readerID)
	if err != nil {
		return 0, fmt.Errorf("mark channel messages read: %w", err)
	}
	return result.RowsAffected()
}

// MarkConversationRead marks the messages peerID sent to readerID.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, readerID, peerID int64, at time.Time) (int64, error) {
	query := `
		UPDATE private_messages
		SET read_at = ?
		WHERE read_at IS NULL AND recipient_id = ? AND sender_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, toNanos(at), readerID, peerID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return result.RowsAffected()
}

// PurgeReadBefore removes messages of both kinds whose read_at is older than cutoff.
func (s *SQLiteStore) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var total int64
	for _, table := range []string{"channel_messages", "private_messages"} {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE read_at IS NOT NULL AND read_at < ?`,
			toNanos(cutoff),
		)
		if err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("get rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return total, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
