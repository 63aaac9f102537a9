package auth

import (
	"errors"
	"fmt"
	"strings"
)

// RoleSnapshot is the point-in-time copy of a role stored on the session row.
// It deliberately omits mutable settings: everything authorization needs after
// login lives here, nothing else.
type RoleSnapshot struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	PermissionLevel int    `json:"permission_level"`
	Category        string `json:"category,omitempty"`
}

// DefaultMemberRole is the floor every identity stands on when it has no
// active role assignments at login time.
var DefaultMemberRole = RoleSnapshot{
	Name:            "member",
	DisplayName:     "Member",
	PermissionLevel: 50,
}

// PermissionSet maps resource -> action -> granted scopes. Scopes are a list,
// not a set: multiple active roles may grant the same resource/action with
// different scopes and any one of them grants access.
type PermissionSet map[string]map[string][]string

// Add appends a scope for resource/action.
func (ps PermissionSet) Add(resource, action, scope string) {
	actions, ok := ps[resource]
	if !ok {
		actions = make(map[string][]string)
		ps[resource] = actions
	}
	actions[action] = append(actions[action], scope)
}

// Scopes returns the scopes granted for the key, nil when none.
func (ps PermissionSet) Scopes(key PermissionKey) []string {
	actions, ok := ps[key.Resource]
	if !ok {
		return nil
	}
	return actions[key.Action]
}

// PermissionKey names a permission as a typed pair instead of a
// "resource.action" string parsed at every guard site.
type PermissionKey struct {
	Resource string
	Action   string
}

func (k PermissionKey) String() string {
	return k.Resource + "." + k.Action
}

// ParsePermissionKey converts the wire form "resource.action" into a key.
// Only call at the boundary where the dotted form arrives; inside the service
// construct keys directly.
func ParsePermissionKey(name string) (PermissionKey, error) {
	name = strings.TrimSpace(name)
	resource, action, ok := strings.Cut(name, ".")
	if !ok || resource == "" || action == "" {
		return PermissionKey{}, fmt.Errorf("invalid permission name %q", name)
	}
	return PermissionKey{Resource: resource, Action: action}, nil
}

// HasPermission reports whether any snapshotted scope grants the key.
// Pure function of the snapshot: no store access.
func (s *Session) HasPermission(key PermissionKey) bool {
	return len(s.Permissions.Scopes(key)) > 0
}

// PrimaryRole is the highest-level snapshotted role. The aggregator orders
// the snapshot by permission_level descending with a lexicographic name
// tie-break, so index zero is authoritative.
func (s *Session) PrimaryRole() RoleSnapshot {
	if len(s.Roles) == 0 {
		return DefaultMemberRole
	}
	return s.Roles[0]
}

// PermissionLevel returns the primary role's level.
func (s *Session) PermissionLevel() int {
	return s.PrimaryRole().PermissionLevel
}

// HasRole is a set-membership test against snapshot roles.
func (s *Session) HasRole(name string) bool {
	for _, r := range s.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether any of the names is in the snapshot.
func (s *Session) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if s.HasRole(n) {
			return true
		}
	}
	return false
}

// RequirePermission returns ErrInsufficientPermission unless the snapshot
// grants the key.
func (s *Session) RequirePermission(key PermissionKey) error {
	if !s.HasPermission(key) {
		return fmt.Errorf("%w: %s", ErrInsufficientPermission, key)
	}
	return nil
}

// RequirePermissionLevel returns ErrInsufficientLevel unless the primary
// role's level is at least min.
func (s *Session) RequirePermissionLevel(min int) error {
	if s.PermissionLevel() < min {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientLevel, min, s.PermissionLevel())
	}
	return nil
}

// RequireRole returns ErrMissingRole unless the named role is snapshotted.
func (s *Session) RequireRole(name string) error {
	if !s.HasRole(name) {
		return fmt.Errorf("%w: %s", ErrMissingRole, name)
	}
	return nil
}

// RequireAnyRole returns ErrMissingRole unless at least one name matches.
func (s *Session) RequireAnyRole(names ...string) error {
	if len(names) == 0 {
		return errors.New("at least one role name is required")
	}
	if !s.HasAnyRole(names...) {
		return fmt.Errorf("%w: one of %s", ErrMissingRole, strings.Join(names, ", "))
	}
	return nil
}
