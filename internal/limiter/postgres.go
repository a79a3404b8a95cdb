package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/gatekeeper/internal/errs"
)

// PG is a PostgreSQL-backed limiter working on the accounts table.
type PG struct {
	pool   pgxQuerier
	policy Policy
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, policy Policy) *PG {
	return &PG{pool: pool, policy: policy}
}

// NewPGWithQuerier constructs a limiter over any pgx-compatible querier.
func NewPGWithQuerier(q pgxQuerier, policy Policy) *PG {
	return &PG{pool: q, policy: policy}
}

// Failure increments the counter and sets locked_until in the same statement,
// so concurrent failures cannot skip the threshold. A longer lock (a ban)
// is never shortened.
func (l *PG) Failure(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, time.Time, error) {
	until := now.UTC().Add(l.policy.LockFor)

	const q = `
UPDATE accounts
SET failed_login_attempts = failed_login_attempts + 1,
    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN GREATEST(locked_until, $3) ELSE locked_until END
WHERE id = $1
RETURNING failed_login_attempts`
	var fails int
	if err := l.pool.QueryRow(ctx, q, accountID, l.policy.MaxFails, until).Scan(&fails); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, time.Time{}, errs.ErrNotFound
		}
		return false, time.Time{}, err
	}
	if l.policy.Reached(fails) {
		return true, until, nil
	}
	return false, time.Time{}, nil
}

// Success resets the counter.
func (l *PG) Success(ctx context.Context, accountID uuid.UUID) error {
	const q = `UPDATE accounts SET failed_login_attempts = 0 WHERE id = $1 AND failed_login_attempts <> 0`
	_, err := l.pool.Exec(ctx, q, accountID)
	return err
}
