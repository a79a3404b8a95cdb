package memory

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/limiter"
)

// Limiter applies a lockout policy to accounts held by a Store.
type Limiter struct {
	s      *Store
	policy limiter.Policy
}

var _ limiter.Limiter = (*Limiter)(nil)

// NewLimiter binds policy to the accounts of s.
func NewLimiter(s *Store, policy limiter.Policy) *Limiter {
	return &Limiter{s: s, policy: policy}
}

// Failure increments the counter and locks once the threshold is reached.
func (l *Limiter) Failure(_ context.Context, accountID uuid.UUID, now time.Time) (bool, time.Time, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	a, ok := l.s.accounts[accountID]
	if !ok {
		return false, time.Time{}, errs.ErrNotFound
	}
	a.FailedLoginAttempts++
	if !l.policy.Reached(a.FailedLoginAttempts) {
		return false, time.Time{}, nil
	}
	until := now.UTC().Add(l.policy.LockFor)
	if a.LockedUntil == nil || a.LockedUntil.Before(until) {
		a.LockedUntil = &until
	}
	return true, until, nil
}

// Success resets the counter.
func (l *Limiter) Success(_ context.Context, accountID uuid.UUID) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if a, ok := l.s.accounts[accountID]; ok {
		a.FailedLoginAttempts = 0
	}
	return nil
}
