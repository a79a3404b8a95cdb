package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
)

// adminSetLockKey is the pg_advisory_xact_lock key guarding admin-count mutations.
const adminSetLockKey int64 = 0x6761_7465_6b70 // "gatekp"

const accountColumns = `id, username, email, password_hash, password_epoch,
is_moderator, is_admin, is_super_admin, is_active,
failed_login_attempts, locked_until, COALESCE(ban_reason, ''),
is_muted, muted_until, COALESCE(mute_reason, ''), created_at`

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

var _ repository.AccountRepository = (*AccountRepo)(nil)

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.PasswordEpoch,
		&a.IsModerator, &a.IsAdmin, &a.IsSuperAdmin, &a.IsActive,
		&a.FailedLoginAttempts, &a.LockedUntil, &a.BanReason,
		&a.IsMuted, &a.MutedUntil, &a.MuteReason, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, username, email, password_hash, password_epoch, is_moderator, is_admin, is_super_admin, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		a.ID, a.Username, a.Email, a.PasswordHash, a.PasswordEpoch,
		a.IsModerator, a.IsAdmin, a.IsSuperAdmin, a.IsActive,
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByIdentifier selects an account by username or (case-insensitive) email.
func (r *AccountRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1 OR lower(email) = lower($1) LIMIT 1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, identifier))
}

// UpdatePassword replaces the hash and bumps the epoch in one statement.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (int64, error) {
	const q = `
UPDATE accounts
SET password_hash = $2, password_epoch = password_epoch + 1
WHERE id = $1 AND is_active
RETURNING password_epoch`
	var epoch int64
	if err := r.db.Pool.QueryRow(ctx, q, id, hash).Scan(&epoch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return epoch, nil
}

// WithinTx runs fn inside a read-committed transaction; row locks and the
// admin-set advisory lock provide the serialization moderation needs.
func (r *AccountRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	return r.db.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &accountTx{tx: tx})
	})
}

type accountTx struct{ tx pgx.Tx }

func (t *accountTx) LockAdminSet(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminSetLockKey)
	return err
}

func (t *accountTx) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(t.tx.QueryRow(ctx, q, id))
}

func (t *accountTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(t.tx.QueryRow(ctx, q, id))
}

func (t *accountTx) CountActiveAdmins(ctx context.Context, exclude uuid.UUID, now time.Time) (int, error) {
	const q = `
SELECT count(*) FROM accounts
WHERE is_admin AND is_active AND id <> $1
  AND (locked_until IS NULL OR locked_until <= $2)`
	var n int
	if err := t.tx.QueryRow(ctx, q, exclude, now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *accountTx) SaveModeration(ctx context.Context, a *model.Account) error {
	const q = `
UPDATE accounts
SET is_moderator = $2, is_admin = $3, is_active = $4,
    failed_login_attempts = $5, locked_until = $6, ban_reason = NULLIF($7, ''),
    is_muted = $8, muted_until = $9, mute_reason = NULLIF($10, '')
WHERE id = $1`
	tag, err := t.tx.Exec(ctx, q,
		a.ID, a.IsModerator, a.IsAdmin, a.IsActive,
		a.FailedLoginAttempts, a.LockedUntil, a.BanReason,
		a.IsMuted, a.MutedUntil, a.MuteReason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
