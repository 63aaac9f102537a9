package auth

import "time"

const (
	IdentityStatusActive    = "active"
	IdentityStatusSuspended = "suspended"
)

// Identity is a person record keyed by email. Created by signup/import flows
// elsewhere; this subsystem only marks it verified and bumps login counters.
type Identity struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	EmailVerified bool       `json:"email_verified"`
	Status        string     `json:"status"`
	LoginCount    int        `json:"login_count"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MagicLinkToken is a single-use login credential delivered by email.
// Once Consumed flips true no verification may ever succeed for it again.
// Several unconsumed tokens may exist per identity at once; consuming one
// leaves the siblings valid until their own expiry.
type MagicLinkToken struct {
	Token      string     `json:"-"`
	IdentityID string     `json:"identity_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Session is a long-lived credential with roles and permissions snapshotted at
// login time. ExpiresAt is fixed at creation; LastActivityAt is touched on
// each authenticated request for audit purposes only, never for sliding
// expiry. The exchange fields exist only between magic-link verification and
// the cross-origin hand-off.
type Session struct {
	Token             string         `json:"-"`
	IdentityID        string         `json:"identity_id"`
	IssuedAt          time.Time      `json:"issued_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	Roles             []RoleSnapshot `json:"roles"`
	Permissions       PermissionSet  `json:"permissions"`
	LastActivityAt    time.Time      `json:"last_activity_at"`
	ExchangeToken     string         `json:"-"`
	ExchangeExpiresAt *time.Time     `json:"-"`
}

// Role is the catalogue entry for a named privilege bundle. PermissionLevel
// totally orders roles for coarse "at least this privileged" checks.
type Role struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DisplayName     string         `json:"display_name"`
	PermissionLevel int            `json:"permission_level"`
	Category        string         `json:"category,omitempty"`
	Settings        map[string]any `json:"settings,omitempty"`
}

// RoleAssignment links an identity to a role within an optional activity
// window. Nil bounds are unbounded on that side.
type RoleAssignment struct {
	IdentityID  string     `json:"identity_id"`
	RoleID      string     `json:"role_id"`
	IsActive    bool       `json:"is_active"`
	ActiveFrom  *time.Time `json:"active_from,omitempty"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
}

// ActiveAt reports whether the assignment grants the role at the given time.
func (a RoleAssignment) ActiveAt(at time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.ActiveFrom != nil && at.Before(*a.ActiveFrom) {
		return false
	}
	if a.ActiveUntil != nil && at.After(*a.ActiveUntil) {
		return false
	}
	return true
}

// PermissionGrant is a resolved {resource, action, scope} triple for one role.
// ScopeOverride, when set on the role-permission link, wins over the
// permission's default scope.
type PermissionGrant struct {
	Resource      string  `json:"resource"`
	Action        string  `json:"action"`
	Scope         string  `json:"scope"`
	ScopeOverride *string `json:"scope_override,omitempty"`
}

// EffectiveScope applies the override rule.
func (g PermissionGrant) EffectiveScope() string {
	if g.ScopeOverride != nil && *g.ScopeOverride != "" {
		return *g.ScopeOverride
	}
	return g.Scope
}
