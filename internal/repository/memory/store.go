// Package memory provides an in-process AccountRepository for development
// and tests. All state is lost on restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
)

// Store keeps accounts in a map guarded by a single mutex. A transaction
// holds the mutex until it finishes, so transactions are fully serialized.
type Store struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*model.Account
	notices  []model.Notification
}

var _ repository.AccountRepository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{accounts: make(map[uuid.UUID]*model.Account)}
}

func clone(a *model.Account) *model.Account {
	c := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	if a.MutedUntil != nil {
		t := *a.MutedUntil
		c.MutedUntil = &t
	}
	return &c
}

func (s *Store) conflicts(a *model.Account) bool {
	for _, e := range s.accounts {
		if e.ID == a.ID || e.Username == a.Username || strings.EqualFold(e.Email, a.Email) {
			return true
		}
		// at most one super_admin, as in the accounts_single_super_admin index
		if a.IsSuperAdmin && e.IsSuperAdmin {
			return true
		}
	}
	return false
}

// Create stores a copy of a.
func (s *Store) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts(a) {
		return errs.ErrAlreadyExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.accounts[a.ID] = clone(a)
	return nil
}

// GetByID returns a copy of the account.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(a), nil
}

// GetByIdentifier matches username exactly or email case-insensitively.
func (s *Store) GetByIdentifier(_ context.Context, identifier string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Username == identifier || strings.EqualFold(a.Email, identifier) {
			return clone(a), nil
		}
	}
	return nil, errs.ErrNotFound
}

// UpdatePassword swaps the hash and bumps the epoch.
func (s *Store) UpdatePassword(_ context.Context, id uuid.UUID, hash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || !a.IsActive {
		return 0, errs.ErrNotFound
	}
	a.PasswordHash = hash
	a.PasswordEpoch++
	return a.PasswordEpoch, nil
}

// WithinTx runs fn against staged copies and publishes them only when fn
// succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{s: s, staged: make(map[uuid.UUID]*model.Account)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		s.accounts[id] = a
	}
	return nil
}

// Deliver records a notification; Store doubles as an inbox sink.
func (s *Store) Deliver(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
	return nil
}

// Inbox returns the notifications delivered to recipient, oldest first.
func (s *Store) Inbox(recipient uuid.UUID) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Notification
	for _, n := range s.notices {
		if n.RecipientID == recipient {
			out = append(out, n)
		}
	}
	return out
}

type storeTx struct {
	s      *Store
	staged map[uuid.UUID]*model.Account
}

// LockAdminSet is a no-op: the store mutex already serializes transactions.
func (t *storeTx) LockAdminSet(context.Context) error { return nil }

func (t *storeTx) lookup(id uuid.UUID) (*model.Account, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	a, ok := t.s.accounts[id]
	return a, ok
}

func (t *storeTx) Get(_ context.Context, id uuid.UUID) (*model.Account, error) {
	a, ok := t.lookup(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(a), nil
}

func (t *storeTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return t.Get(ctx, id)
}

func (t *storeTx) CountActiveAdmins(_ context.Context, exclude uuid.UUID, now time.Time) (int, error) {
	n := 0
	seen := make(map[uuid.UUID]struct{}, len(t.staged))
	count := func(a *model.Account) {
		if a.ID != exclude && a.IsAdmin && a.IsActive && !a.IsLocked(now) {
			n++
		}
	}
	for id, a := range t.staged {
		seen[id] = struct{}{}
		count(a)
	}
	for id, a := range t.s.accounts {
		if _, ok := seen[id]; !ok {
			count(a)
		}
	}
	return n, nil
}

func (t *storeTx) SaveModeration(_ context.Context, a *model.Account) error {
	cur, ok := t.lookup(a.ID)
	if !ok {
		return errs.ErrNotFound
	}
	next := clone(cur)
	next.IsModerator, next.IsAdmin, next.IsActive = a.IsModerator, a.IsAdmin, a.IsActive
	next.FailedLoginAttempts = a.FailedLoginAttempts
	next.LockedUntil, next.BanReason = a.LockedUntil, a.BanReason
	next.IsMuted, next.MutedUntil, next.MuteReason = a.IsMuted, a.MutedUntil, a.MuteReason
	t.staged[a.ID] = clone(next)
	return nil
}
