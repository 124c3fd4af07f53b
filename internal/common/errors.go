// Package common defines shared constants and sentinel errors used across
// the messaging core. Callers should use errors.Is / errors.As to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Messaging core errors.
	ErrChatNotFound          = errors.New("chat not found")
	ErrParticipantNotAllowed = errors.New("participant not allowed")
	ErrDecryption            = errors.New("decryption failed")
	ErrAuthorizationDenied   = errors.New("authorization denied")
	ErrRateLimited           = errors.New("rate limited")
	ErrStaleEpoch            = errors.New("stale key epoch")
	ErrMessageUnavailable    = errors.New("message unavailable")
	ErrNotWhitelisted        = errors.New("email is not whitelisted")
)

// AuthorizationDeniedError is returned when the role engine rejects an
// action. Reason is a stable machine-readable code suitable for audit logs;
// it never carries data about the target beyond its identity.
type AuthorizationDeniedError struct {
	Action string
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s: %s", e.Action, e.Reason)
}

func (e *AuthorizationDeniedError) Unwrap() error {
	return ErrAuthorizationDenied
}

// StaleEpochError reports an encryption attempt against a key epoch that is
// no longer current for the chat.
type StaleEpochError struct {
	ChatID    string
	Requested int64
	Current   int64
}

func (e *StaleEpochError) Error() string {
	return fmt.Sprintf("stale key epoch for chat %s: requested %d, current %d", e.ChatID, e.Requested, e.Current)
}

func (e *StaleEpochError) Unwrap() error {
	return ErrStaleEpoch
}

// Validation wraps a human-readable message with ErrorValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}
