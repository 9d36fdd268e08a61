package utils

import (
	"errors"
	"fmt"
)

// Error kinds produced by the mail core. Callers match them with errors.Is.
var (
	ErrParse    = errors.New("unparseable credential line")
	ErrAuth     = errors.New("account credentials are invalid")
	ErrNetwork  = errors.New("mail transport failure")
	ErrNotFound = errors.New("message not found")
)

// ParseError reports why a credential line was rejected
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
}

// Is makes errors.Is(err, ErrParse) true
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// MailError is a classified failure of a token exchange or IMAP operation
type MailError struct {
	Kind      error  // one of ErrAuth, ErrNetwork, ErrNotFound
	Op        string // operation that failed, e.g. "token refresh"
	AccountID uint64
	Err       error
}

func (e *MailError) Error() string {
	msg := fmt.Sprintf("%s (account %d): %v", e.Op, e.AccountID, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error kind
func (e *MailError) Is(target error) bool {
	return target == e.Kind
}

func (e *MailError) Unwrap() error {
	return e.Err
}

// AuthError wraps a rejected refresh token or XOAUTH2 login
func AuthError(op string, accountID uint64, err error) *MailError {
	return &MailError{Kind: ErrAuth, Op: op, AccountID: accountID, Err: err}
}

// NetworkError wraps a transport failure or timeout
func NetworkError(op string, accountID uint64, err error) *MailError {
	return &MailError{Kind: ErrNetwork, Op: op, AccountID: accountID, Err: err}
}

// NotFound wraps a message identifier that no longer resolves
func NotFound(op string, accountID uint64, err error) *MailError {
	return &MailError{Kind: ErrNotFound, Op: op, AccountID: accountID, Err: err}
}

// ErrorKind returns a short machine-readable name for err's kind
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "internal"
	}
}

// AppError represents a custom application error with context
type AppError struct {
	Code    int    // HTTP status code
	Message string // User-friendly message
	Kind    string
	Err     error // Underlying error
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Kind:    ErrorKind(err),
		Err:     err,
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors
func BadRequestError(message string, err error) *AppError {
	return NewAppError(400, message, err)
}

func UnauthorizedError(message string, err error) *AppError {
	return NewAppError(401, message, err)
}

func ForbiddenError(message string, err error) *AppError {
	return NewAppError(403, message, err)
}

func NotFoundError(message string, err error) *AppError {
	return NewAppError(404, message, err)
}

func ConflictError(message string, err error) *AppError {
	return NewAppError(409, message, err)
}

func InternalServerError(message string, err error) *AppError {
	return NewAppError(500, message, err)
}

// StatusFor maps a mail core error to an HTTP status. 401 is kept for dead
// local sessions, so rejected mailbox credentials use 403.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrAuth):
		return 403
	case errors.Is(err, ErrNetwork):
		return 503
	case errors.Is(err, ErrNotFound):
		return 404
	default:
		return 500
	}
}

// FromMailError converts a mail core error into an AppError with message
// as the user-facing text.
func FromMailError(message string, err error) *AppError {
	return NewAppError(StatusFor(err), message, err)
}
