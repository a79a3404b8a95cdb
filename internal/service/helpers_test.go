package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/notify"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/repository/memory"
	"github.com/and161185/gatekeeper/internal/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// plainHasher keeps tests fast; argon2id is covered in internal/crypto.
type plainHasher struct {
	mu       sync.Mutex
	compares int
}

func (h *plainHasher) Hash(secret string) (string, error) { return "plain:" + secret, nil }

func (h *plainHasher) Compare(secret, encoded string) bool {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return strings.TrimPrefix(encoded, "plain:") == secret && strings.HasPrefix(encoded, "plain:")
}

func (h *plainHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

var _ Hasher = (*plainHasher)(nil)

type recordEmitter struct {
	mu  sync.Mutex
	got []model.Notification
}

func (e *recordEmitter) Emit(n model.Notification) {
	e.mu.Lock()
	e.got = append(e.got, n)
	e.mu.Unlock()
}

func (e *recordEmitter) all() []model.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Notification(nil), e.got...)
}

var _ notify.Emitter = (*recordEmitter)(nil)

const testPassword = "correct horse"

type env struct {
	t      *testing.T
	clock  *fakeClock
	store  *memory.Store
	hasher *plainHasher
	tokens *token.Service
	notes  *recordEmitter
	auth   *AuthServiceImpl
	mod    *ModerationServiceImpl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := newClock()
	store := memory.NewStore()
	tokens, err := token.New(token.Config{
		Secret:     []byte("service-test-secret"),
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, token.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	h := &plainHasher{}
	notes := &recordEmitter{}
	log := zaptest.NewLogger(t)
	lim := memory.NewLimiter(store, limiter.Policy{MaxFails: 3, LockFor: 15 * time.Minute})

	return &env{
		t:      t,
		clock:  clock,
		store:  store,
		hasher: h,
		tokens: tokens,
		notes:  notes,
		auth:   NewAuthService(store, tokens, lim, WithLogger(log), WithClock(clock.Now), WithHasher(h)),
		mod:    NewModerationService(store, notes, WithLogger(log), WithClock(clock.Now)),
	}
}

// seed stores an active account with the given role and testPassword.
func (e *env) seed(name string, role model.Role) *model.Account {
	e.t.Helper()
	a, err := NewAccount(e.hasher, name, name+"@example.com", testPassword)
	if err != nil {
		e.t.Fatalf("NewAccount: %v", err)
	}
	a.IsModerator = role == model.RoleModerator
	a.IsAdmin = role >= model.RoleAdmin
	a.IsSuperAdmin = role == model.RoleSuperAdmin
	if err := e.store.Create(context.Background(), a); err != nil {
		e.t.Fatalf("Create: %v", err)
	}
	return a
}

func (e *env) reload(id uuid.UUID) *model.Account {
	e.t.Helper()
	a, err := e.store.GetByID(context.Background(), id)
	if err != nil {
		e.t.Fatalf("GetByID: %v", err)
	}
	return a
}

// save persists the moderation fields of a, bypassing permission checks.
func (e *env) save(a *model.Account) {
	e.t.Helper()
	if err := e.store.WithinTx(context.Background(), saveTx(a)); err != nil {
		e.t.Fatalf("save %s: %v", a.Username, err)
	}
}

// failingRepo wraps a repository and fails selected calls.
type failingRepo struct {
	repository.AccountRepository
	getErr error
	txErr  error
}

func (f *failingRepo) GetByIdentifier(ctx context.Context, id string) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.AccountRepository.GetByIdentifier(ctx, id)
}

func (f *failingRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.AccountRepository.GetByID(ctx, id)
}

func (f *failingRepo) WithinTx(ctx context.Context, fn func(context.Context, repository.AccountTx) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return f.AccountRepository.WithinTx(ctx, fn)
}

// saveTx persists the moderation fields of a, bypassing permission checks.
func saveTx(a *model.Account) func(context.Context, repository.AccountTx) error {
	return func(ctx context.Context, tx repository.AccountTx) error {
		return tx.SaveModeration(ctx, a)
	}
}
