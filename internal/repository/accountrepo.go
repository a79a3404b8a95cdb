// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gatekeeper/internal/model"
)

// AccountRepository is the authoritative account store.
// Lookups return errs.ErrNotFound for missing rows and also return inactive
// accounts; callers decide how soft-deleted accounts behave.
type AccountRepository interface {
	// Create inserts a new account; duplicates yield errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByIdentifier loads an account by username or email.
	GetByIdentifier(ctx context.Context, identifier string) (*model.Account, error)
	// UpdatePassword stores a new hash and bumps password_epoch by exactly one,
	// returning the new epoch. Inactive accounts yield errs.ErrNotFound.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (int64, error)
	// WithinTx runs fn in a single transaction; fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error
}

// AccountTx is the transactional view used by moderation actions.
type AccountTx interface {
	// LockAdminSet serializes every mutation that can change the admin count.
	LockAdminSet(ctx context.Context) error
	// Get loads an account without locking it.
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetForUpdate loads and row-locks an account until commit.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// CountActiveAdmins counts is_admin, active, unlocked accounts other than exclude.
	CountActiveAdmins(ctx context.Context, exclude uuid.UUID, now time.Time) (int, error)
	// SaveModeration persists role flags, is_active, lock/ban and mute fields
	// and the failure counter of a.
	SaveModeration(ctx context.Context, a *model.Account) error
}
