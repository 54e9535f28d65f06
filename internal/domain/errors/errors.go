package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("token is invalid or expired")
	ErrNoToken            = errors.New("no token provided, authorization denied")
	ErrNotFound           = errors.New("task not found")
	ErrValidation         = errors.New("validation failed")
	ErrStore              = errors.New("storage failure")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBadRequest         = errors.New("invalid request body")
	ErrInternalServer     = errors.New("internal server error")

	ErrInvalidEmail    = errors.New("a valid email is required")
	ErrInvalidPassword = errors.New("password must be between 6 and 100 characters")
	ErrInvalidName     = errors.New("name is too long")

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigParseFailed    = errors.New("failed to parse config file")
	ErrConfigInvalidFormat  = errors.New("invalid config value")

	ErrInvalidGzipRequest    = errors.New("invalid gzip request body")
	ErrGzipCompressionFailed = errors.New("gzip compression failed")
	ErrEmptyMigratePath      = errors.New("migrations path is empty")
	ErrUnknownDriver         = errors.New("unknown storage driver")
)

// ValidationError reports a rejected field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StoreError wraps a persistence failure. The cause is for logs only and
// must never reach a client. It matches ErrStore.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
