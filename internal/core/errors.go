package core

// Error codes carried by error events.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeValidation      = "validation"
	ErrCodeNotFound        = "not_found"
	ErrCodeForbidden       = "forbidden"
	ErrCodeSessionExpired  = "session_expired"
	ErrCodeAlreadyLoggedIn = "already_logged_in"
	ErrCodeConflict        = "conflict"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeUnknownEvent    = "unknown_event"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
