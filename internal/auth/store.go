package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth core needs. The
// relational store is the single source of truth so multiple API instances
// can run behind a load balancer without coordination; nothing is cached in
// process.
type Store interface {
	Identities() IdentityStore
	MagicLinks() MagicLinkStore
	Sessions() SessionStore
	RBAC() RBACStore
}

// IdentityStore reads and lightly mutates person records. This subsystem
// never creates or deletes identities.
type IdentityStore interface {
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	// RecordLogin marks the email verified, increments the login counter and
	// stamps last_login_at.
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// MagicLinkStore owns single-use login tokens.
type MagicLinkStore interface {
	Create(ctx context.Context, tok *MagicLinkToken) error
	// Consume atomically marks the token consumed iff it exists, is
	// unconsumed and unexpired at now. It is a conditional write, never
	// read-then-write, so two concurrent calls resolve to exactly one
	// winner. The loser gets ErrAlreadyUsedToken; a missing token
	// ErrInvalidToken; a timed-out one ErrExpiredToken.
	Consume(ctx context.Context, token string, now time.Time) (*MagicLinkToken, error)
}

// SessionStore owns session rows including the ephemeral exchange fields.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	// FindByToken returns the row regardless of expiry; the resolver checks
	// expires_at lazily (no background reaper is assumed).
	FindByToken(ctx context.Context, token string) (*Session, error)
	// ConsumeExchange atomically clears the exchange fields iff the token
	// matches and is unexpired at now, returning the session. Same error
	// contract as MagicLinkStore.Consume, minus the already-used case: a
	// cleared exchange token is indistinguishable from one that never
	// existed, which is exactly what a replaying attacker should see.
	ConsumeExchange(ctx context.Context, exchangeToken string, now time.Time) (*Session, error)
	Delete(ctx context.Context, token string) error
	TouchActivity(ctx context.Context, token string, at time.Time) error
}

// RBACStore reads the role/permission relations administered elsewhere.
type RBACStore interface {
	// ActiveRoles returns the roles granted by assignments active at the
	// given instant, ordered by permission_level descending then name
	// ascending (the primary-role tie-break).
	ActiveRoles(ctx context.Context, identityID string, at time.Time) ([]Role, error)
	// GrantsForRole returns the resolved permission grants of one role,
	// overrides included.
	GrantsForRole(ctx context.Context, roleID string) ([]PermissionGrant, error)
}
