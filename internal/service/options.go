package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gatekeeper/internal/crypto"
	"github.com/and161185/gatekeeper/internal/observe"
)

// Hasher hashes secrets and compares a secret with an encoded hash.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, encoded string) bool
}

type settings struct {
	log     *zap.Logger
	now     func() time.Time
	metrics observe.Metrics
	hasher  Hasher
}

func newSettings(opts []Option) settings {
	st := settings{
		log:     zap.NewNop(),
		now:     time.Now,
		metrics: observe.Noop(),
		hasher:  crypto.Argon2id{},
	}
	for _, o := range opts {
		o(&st)
	}
	return st
}

// Option customizes a service.
type Option func(*settings)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithHasher replaces the argon2id hasher. Only the auth service uses it.
func WithHasher(h Hasher) Option {
	return func(s *settings) {
		if h != nil {
			s.hasher = h
		}
	}
}
