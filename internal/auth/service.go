package auth

import (
	"errors"
	"time"
)

// Service implements the passwordless login flow: it issues magic-link
// tokens, verifies them into sessions, brokers the cross-origin exchange and
// resolves session credentials per request.
type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithConfig replaces the default token/cookie configuration.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) error {
		s.cfg = cfg.normalized()
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth core over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store: store,
		cfg:   DefaultConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Config returns the immutable configuration the service was built with.
func (s *Service) Config() Config {
	return s.cfg
}
