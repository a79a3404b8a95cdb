// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist (or is soft-deleted).
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials indicates a bad identifier or secret. It never says which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indicates the account has an active lockout or ban.
	ErrAccountLocked = errors.New("account locked")

	// ErrInvalidToken covers bad signature, expiry, missing claims and epoch mismatch alike.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPermissionDenied indicates a moderation invariant rejected the action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict indicates the action conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")
)

// DenialError is returned by the permission engine. Reason is for logs; the
// transport answers callers with a generic message. It unwraps to
// ErrPermissionDenied.
type DenialError struct {
	Reason string
}

// Deny builds a DenialError with the given reason.
func Deny(reason string) *DenialError { return &DenialError{Reason: reason} }

func (e *DenialError) Error() string {
	if e.Reason == "" {
		return ErrPermissionDenied.Error()
	}
	return ErrPermissionDenied.Error() + ": " + e.Reason
}

func (e *DenialError) Unwrap() error { return ErrPermissionDenied }

// DenialReason extracts the reason from err if it carries one.
func DenialReason(err error) (string, bool) {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}
