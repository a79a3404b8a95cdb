// Package limiter records failed logins on the account and places the lockout
// window once the configured threshold is reached.
package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Failure records a failed attempt; blocked reports whether this attempt
	// reached the threshold and placed a lock until the returned time.
	Failure(ctx context.Context, accountID uuid.UUID, now time.Time) (blocked bool, until time.Time, err error)
	// Success resets the failure counter after a successful login.
	Success(ctx context.Context, accountID uuid.UUID) error
}

// Policy is the lockout policy.
type Policy struct {
	MaxFails int           // max_failed_login_attempts
	LockFor  time.Duration // lockout window
}

// DefaultPolicy mirrors the server defaults.
var DefaultPolicy = Policy{MaxFails: 5, LockFor: 15 * time.Minute}

// Validate rejects policies that would never or always lock.
func (p Policy) Validate() error {
	if p.MaxFails <= 0 {
		return errors.New("limiter: max fails must be positive")
	}
	if p.LockFor <= 0 {
		return errors.New("limiter: lock window must be positive")
	}
	return nil
}

// Reached reports whether fails hits the threshold.
func (p Policy) Reached(fails int) bool { return fails >= p.MaxFails }
