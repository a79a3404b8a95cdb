// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Account is the single persistent entity of the auth core.
type Account struct {
	ID           uuid.UUID
	Username     string // unique
	Email        string // unique
	PasswordHash string // encoded hash, opaque outside internal/crypto
	// PasswordEpoch starts at 0 and grows by exactly 1 per password change.
	PasswordEpoch int64

	IsModerator  bool
	IsAdmin      bool
	IsSuperAdmin bool
	IsActive     bool // false = soft-deleted

	FailedLoginAttempts int
	LockedUntil         *time.Time
	BanReason           string

	IsMuted    bool
	MutedUntil *time.Time // nil while muted = permanent
	MuteReason string

	CreatedAt time.Time
}

// Role derives the nominal role from the flags.
func (a *Account) Role() Role { return DeriveRole(a.IsModerator, a.IsAdmin, a.IsSuperAdmin) }

// IsLocked reports whether login is blocked at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// IsMutedAt reports whether content mutation is restricted at now.
func (a *Account) IsMutedAt(now time.Time) bool {
	if !a.IsMuted {
		return false
	}
	return a.MutedUntil == nil || a.MutedUntil.After(now)
}

// Summary returns the public view returned on login.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Username: a.Username, Email: a.Email, Role: a.Role()}
}

// Restrictions returns the moderation-relevant state of the account.
func (a *Account) Restrictions() RestrictionState {
	return RestrictionState{
		Role:                a.Role(),
		IsActive:            a.IsActive,
		IsMuted:             a.IsMuted,
		MutedUntil:          a.MutedUntil,
		MuteReason:          a.MuteReason,
		LockedUntil:         a.LockedUntil,
		BanReason:           a.BanReason,
		FailedLoginAttempts: a.FailedLoginAttempts,
	}
}

// AccountSummary is the role-derived account view handed to clients.
type AccountSummary struct {
	ID       uuid.UUID
	Username string
	Email    string
	Role     Role
}

// RestrictionState is the "new state" reported after a moderation action.
type RestrictionState struct {
	Role                Role
	IsActive            bool
	IsMuted             bool
	MutedUntil          *time.Time
	MuteReason          string
	LockedUntil         *time.Time
	BanReason           string
	FailedLoginAttempts int
}

// ModerationResult is returned by every moderation action.
type ModerationResult struct {
	TargetID uuid.UUID
	State    RestrictionState
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// TokenPair collects issued access/refresh tokens.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is the successful outcome of a login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration // access token lifetime
	Account      AccountSummary
}

// RefreshResult is the successful outcome of a refresh.
type RefreshResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	AccountID  uuid.UUID
	Username   string
	Role       Role
	Muted      bool
	MutedUntil *time.Time
}

// CategoryAnnouncement is the category of every restriction notice.
const CategoryAnnouncement = "announcement"

// Notification is a message delivered to the NotificationSink.
type Notification struct {
	RecipientID uuid.UUID
	Title       string
	Body        string
	Category    string
}
