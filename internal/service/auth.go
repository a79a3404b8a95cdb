// Package service contains the authentication gate and moderation actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/token"
)

// AuthService defines login, token renewal and credential operations.
type AuthService interface {
	// Register creates an active user account.
	Register(ctx context.Context, in RegisterInput) (model.AccountSummary, error)
	// Login exchanges an identifier and secret for a token pair.
	Login(ctx context.Context, identifier, secret string) (model.LoginResult, error)
	// Refresh mints a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (model.RefreshResult, error)
	// Authenticate resolves an access token to the live principal.
	Authenticate(ctx context.Context, accessToken string) (model.Principal, error)
	// ChangePassword replaces the secret and invalidates every earlier token.
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) (model.TokenPair, error)
}

// Tokens is the subset of token.Service the gate relies on.
type Tokens interface {
	AccessTTL() time.Duration
	IssueAccess(a *model.Account) (string, time.Time, error)
	IssuePair(a *model.Account) (model.TokenPair, error)
	VerifyAccess(raw string) (token.Verified, error)
	VerifyRefresh(raw string) (token.Verified, error)
}

var _ Tokens = (*token.Service)(nil)

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Validate checks the registration payload.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(3, 32), validation.Match(usernameRe)),
		validation.Field(&in.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 128)),
	)
}

func validatePassword(p string) error {
	return validation.Validate(p, validation.Required, validation.Length(8, 128))
}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	tokens   Tokens
	lim      limiter.Limiter
	settings

	dummyOnce sync.Once
	dummyHash string
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, tokens Tokens, lim limiter.Limiter, opts ...Option) *AuthServiceImpl {
	return &AuthServiceImpl{accounts: accounts, tokens: tokens, lim: lim, settings: newSettings(opts)}
}

// NewAccount builds an active user account with a hashed password.
func NewAccount(h Hasher, username, email, password string) (*model.Account, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, err := h.Hash(password)
	if err != nil {
		return nil, err
	}
	return &model.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}, nil
}

// Register creates a new user account.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.AccountSummary, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		return model.AccountSummary{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	a, err := NewAccount(s.hasher, in.Username, in.Email, in.Password)
	if err != nil {
		return model.AccountSummary{}, err
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return model.AccountSummary{}, err
	}
	s.log.Info("account registered", zap.String("account_id", a.ID.String()))
	return a.Summary(), nil
}

// burnCompare spends one hash comparison so an unknown identifier costs
// about as much as a wrong password.
func (s *AuthServiceImpl) burnCompare(secret string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("gatekeeper-dummy-secret")
	})
	_ = s.hasher.Compare(secret, s.dummyHash)
}

// recordFailure counts one wrong secret against the account and logs a new lock.
func (s *AuthServiceImpl) recordFailure(ctx context.Context, id uuid.UUID, now time.Time) error {
	blocked, until, err := s.lim.Failure(ctx, id, now)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("record failed login: %w", err)
	}
	if blocked {
		s.metrics.RecordLockout(ctx)
		s.log.Warn("account locked after failed logins",
			zap.String("account_id", id.String()),
			zap.Time("locked_until", until),
		)
	}
	return nil
}

// Login runs one attempt of the login state machine.
func (s *AuthServiceImpl) Login(ctx context.Context, identifier, secret string) (res model.LoginResult, err error) {
	defer func() { s.metrics.RecordLogin(ctx, err) }()

	a, err := s.accounts.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.LoginResult{}, err
	}
	if err != nil || !a.IsActive {
		s.burnCompare(secret)
		return model.LoginResult{}, errs.ErrInvalidCredentials
	}

	now := s.now()
	if a.IsLocked(now) {
		return model.LoginResult{}, errs.ErrAccountLocked
	}

	if !s.hasher.Compare(secret, a.PasswordHash) {
		if err := s.recordFailure(ctx, a.ID, now); err != nil {
			return model.LoginResult{}, err
		}
		return model.LoginResult{}, errs.ErrInvalidCredentials
	}

	if err := s.lim.Success(ctx, a.ID); err != nil {
		return model.LoginResult{}, fmt.Errorf("reset failed logins: %w", err)
	}
	a.FailedLoginAttempts = 0

	pair, err := s.tokens.IssuePair(a)
	if err != nil {
		return model.LoginResult{}, err
	}
	return model.LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    s.tokens.AccessTTL(),
		Account:      a.Summary(),
	}, nil
}

// liveAccount loads the token subject and checks it is still the account the
// token was issued for. locked_until only gates Login.
func (s *AuthServiceImpl) liveAccount(ctx context.Context, v token.Verified) (*model.Account, error) {
	a, err := s.accounts.GetByID(ctx, v.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidToken
		}
		return nil, err
	}
	if !a.IsActive || a.PasswordEpoch != v.PasswordEpoch {
		return nil, errs.ErrInvalidToken
	}
	return a, nil
}

// Refresh issues a new access token; the refresh token is not rotated.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (res model.RefreshResult, err error) {
	defer func() { s.metrics.RecordRefresh(ctx, err) }()

	v, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return model.RefreshResult{}, errs.ErrInvalidToken
	}
	a, err := s.liveAccount(ctx, v)
	if err != nil {
		return model.RefreshResult{}, err
	}
	access, _, err := s.tokens.IssueAccess(a)
	if err != nil {
		return model.RefreshResult{}, err
	}
	return model.RefreshResult{
		AccessToken: access,
		TokenType:   model.TokenTypeBearer,
		ExpiresIn:   s.tokens.AccessTTL(),
	}, nil
}

// Authenticate verifies an access token against the live account. The role
// comes from the account, not from the token's hint.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (model.Principal, error) {
	v, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return model.Principal{}, errs.ErrInvalidToken
	}
	a, err := s.liveAccount(ctx, v)
	if err != nil {
		return model.Principal{}, err
	}
	now := s.now()
	p := model.Principal{
		AccountID: a.ID,
		Username:  a.Username,
		Role:      a.Role(),
		Muted:     a.IsMutedAt(now),
	}
	if p.Muted {
		p.MutedUntil = a.MutedUntil
	}
	return p, nil
}

// ChangePassword stores a new hash, bumps the epoch and returns a pair bound
// to the new epoch. A wrong current password counts toward the lockout like a
// failed login.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) (model.TokenPair, error) {
	if err := validatePassword(next); err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: new password: %v", errs.ErrValidation, err)
	}
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !a.IsActive {
		return model.TokenPair{}, errs.ErrNotFound
	}
	now := s.now()
	if a.IsLocked(now) {
		return model.TokenPair{}, errs.ErrAccountLocked
	}
	if !s.hasher.Compare(current, a.PasswordHash) {
		if err := s.recordFailure(ctx, a.ID, now); err != nil {
			return model.TokenPair{}, err
		}
		return model.TokenPair{}, errs.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return model.TokenPair{}, err
	}
	epoch, err := s.accounts.UpdatePassword(ctx, a.ID, hash)
	if err != nil {
		return model.TokenPair{}, err
	}
	a.PasswordHash, a.PasswordEpoch = hash, epoch
	s.log.Info("password changed",
		zap.String("account_id", a.ID.String()),
		zap.Int64("password_epoch", epoch),
	)
	return s.tokens.IssuePair(a)
}
