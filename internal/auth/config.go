package auth

import "time"

// Token lifetime defaults. A magic link has to outlive email delivery delays,
// a session lasts a working day, an exchange token only has to survive one
// browser redirect.
const (
	DefaultMagicLinkTTL = 15 * time.Minute
	DefaultSessionTTL   = 24 * time.Hour
	DefaultExchangeTTL  = 60 * time.Second
)

const DefaultCookieName = "confreg_session"

// Config carries the knobs the verifier, broker and resolver share. It is an
// immutable value handed to constructors, never package state.
type Config struct {
	// CookieName is the fixed session cookie name.
	CookieName string

	MagicLinkTTL time.Duration
	SessionTTL   time.Duration
	ExchangeTTL  time.Duration

	// ExposeTokenInBody echoes the session token in the exchange response
	// body for cross-origin API clients that cannot carry cookies. Doing so
	// weakens the HttpOnly guarantee for those clients; same-site
	// deployments should disable it.
	ExposeTokenInBody bool

	// SecureCookies sets the Secure attribute. On behind TLS, off for local
	// development over plain HTTP.
	SecureCookies bool
}

// DefaultConfig mirrors the production deployment.
func DefaultConfig() Config {
	return Config{
		CookieName:        DefaultCookieName,
		MagicLinkTTL:      DefaultMagicLinkTTL,
		SessionTTL:        DefaultSessionTTL,
		ExchangeTTL:       DefaultExchangeTTL,
		ExposeTokenInBody: true,
		SecureCookies:     true,
	}
}

// normalized fills zero fields with defaults so a partially built Config
// cannot issue tokens with zero TTLs.
func (c Config) normalized() Config {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.MagicLinkTTL <= 0 {
		c.MagicLinkTTL = DefaultMagicLinkTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.ExchangeTTL <= 0 {
		c.ExchangeTTL = DefaultExchangeTTL
	}
	return c
}
