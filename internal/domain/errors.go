package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDeleted     = errors.New("account_deleted")
	ErrGraceExpired       = errors.New("grace_period_expired")
	ErrTokenInvalid       = errors.New("token_invalid")
	ErrTokenExpired       = errors.New("token_expired")
	ErrAlreadyVerified    = errors.New("already_verified")
	ErrGraceActive        = errors.New("grace_period_active")
	ErrRegistrationClosed = errors.New("registration_closed")
	ErrValidation         = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// StorageExceededError rejects an upload batch as a whole and reports how
// much room the user has left.
type StorageExceededError struct {
	AvailableBytes int64
	LimitBytes     int64
}

func (e *StorageExceededError) Error() string {
	return fmt.Sprintf("storage limit exceeded: %d of %d bytes available", e.AvailableBytes, e.LimitBytes)
}
