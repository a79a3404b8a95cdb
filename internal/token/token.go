// Package token issues and verifies the access/refresh bearer tokens.
//
// Both kinds share one claim envelope:
//
//	{"sub": <account id>, "pwd_ver": <int>, "role": <access only>, "iat": <unix>, "exp": <unix>}
//
// Verification is purely cryptographic; comparing pwd_ver against the live
// account is the caller's job.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
)

// Kind distinguishes the two token kinds.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

func (k Kind) String() string {
	if k == KindRefresh {
		return "refresh"
	}
	return "access"
}

// Claims is the signed payload.
type Claims struct {
	PasswordEpoch *int64 `json:"pwd_ver,omitempty"`
	Role          string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Kind reports access when a role hint is present, refresh otherwise.
func (c *Claims) Kind() Kind {
	if c.Role != "" {
		return KindAccess
	}
	return KindRefresh
}

// Verified is the validated content of a token.
type Verified struct {
	Subject       uuid.UUID
	PasswordEpoch int64
	Role          string
	Kind          Kind
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Config is the immutable token configuration.
type Config struct {
	Secret     []byte
	Algorithm  string // HS256 | HS384 | HS512
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

var methods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// SupportedAlgorithms lists the accepted signing algorithms.
func SupportedAlgorithms() []string { return []string{"HS256", "HS384", "HS512"} }

// Service is stateless after construction and safe for concurrent use.
type Service struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates cfg and builds the service. Misconfiguration is fatal for the
// caller; there is no fallback secret.
func New(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	m, ok := methods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("token: unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}
	s := &Service{
		secret:     append([]byte(nil), cfg.Secret...),
		method:     m,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccess signs an access token carrying the account's epoch and role hint.
func (s *Service) IssueAccess(a *model.Account) (string, time.Time, error) {
	return s.issue(a, a.Role().String(), s.accessTTL)
}

// IssueRefresh signs a refresh token; it carries no role.
func (s *Service) IssueRefresh(a *model.Account) (string, time.Time, error) {
	return s.issue(a, "", s.refreshTTL)
}

// IssuePair issues both tokens for the account.
func (s *Service) IssuePair(a *model.Account) (model.TokenPair, error) {
	access, accessExp, err := s.IssueAccess(a)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(a)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) issue(a *model.Account, role string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl)
	epoch := a.PasswordEpoch
	claims := Claims{
		PasswordEpoch: &epoch,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	return signed, exp, err
}

// Verify checks signature, algorithm, expiry and required claims. Every
// failure collapses to errs.ErrInvalidToken.
func (s *Service) Verify(raw string) (Verified, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != s.method {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Verified{}, errs.ErrInvalidToken
	}
	if claims.Subject == "" || claims.PasswordEpoch == nil {
		return Verified{}, errs.ErrInvalidToken
	}
	sub, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Verified{}, errs.ErrInvalidToken
	}

	v := Verified{
		Subject:       sub,
		PasswordEpoch: *claims.PasswordEpoch,
		Role:          claims.Role,
		Kind:          claims.Kind(),
		ExpiresAt:     claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	return v, nil
}

// VerifyAccess is Verify restricted to access tokens.
func (s *Service) VerifyAccess(raw string) (Verified, error) { return s.verifyKind(raw, KindAccess) }

// VerifyRefresh is Verify restricted to refresh tokens.
func (s *Service) VerifyRefresh(raw string) (Verified, error) { return s.verifyKind(raw, KindRefresh) }

func (s *Service) verifyKind(raw string, want Kind) (Verified, error) {
	v, err := s.Verify(raw)
	if err != nil {
		return Verified{}, err
	}
	if v.Kind != want {
		return Verified{}, errs.ErrInvalidToken
	}
	return v, nil
}
