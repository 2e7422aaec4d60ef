package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation failed")
	ErrConfiguration  = errors.New("invalid configuration")

	// Authentication failures. All of them wrap ErrUnauthorized.
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidTwoFactorCode = fmt.Errorf("%w: invalid verification code", ErrUnauthorized)
	ErrInvalidToken         = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrOAuthState           = fmt.Errorf("%w: invalid oauth state", ErrUnauthorized)

	// Secret cipher failures
	ErrCiphertextFormat    = errors.New("malformed ciphertext envelope")
	ErrCiphertextIntegrity = errors.New("ciphertext authentication failed")
)

// FieldError ties a user-facing message to the form field it belongs to.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func NewFieldError(field, message string, kind error) *FieldError {
	return &FieldError{Field: field, Message: message, Err: kind}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
