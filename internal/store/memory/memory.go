// Package memory is an in-process implementation of auth.Store. It backs
// local development when no database DSN is configured and gives tests a
// store with real conditional-write semantics: consumption is guarded by one
// mutex, so concurrent verifications race exactly the way the SQL
// conditional updates do.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"confreg.org/internal/auth"
)

type Store struct {
	mu          sync.Mutex
	identities  map[string]*auth.Identity // by id
	byEmail     map[string]string         // email -> id
	magicLinks  map[string]*auth.MagicLinkToken
	sessions    map[string]*auth.Session
	roles       map[string]auth.Role
	assignments []auth.RoleAssignment
	grants      map[string][]auth.PermissionGrant // role id -> grants
}

var _ auth.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		identities: make(map[string]*auth.Identity),
		byEmail:    make(map[string]string),
		magicLinks: make(map[string]*auth.MagicLinkToken),
		sessions:   make(map[string]*auth.Session),
		roles:      make(map[string]auth.Role),
		grants:     make(map[string][]auth.PermissionGrant),
	}
}

func (s *Store) Identities() auth.IdentityStore { return (*identityStore)(s) }

func (s *Store) MagicLinks() auth.MagicLinkStore { return (*magicLinkStore)(s) }

func (s *Store) Sessions() auth.SessionStore { return (*sessionStore)(s) }

func (s *Store) RBAC() auth.RBACStore { return (*rbacStore)(s) }

// PutIdentity inserts or replaces an identity. Seeding hook for dev mode and
// tests; production identities arrive through signup/import flows.
func (s *Store) PutIdentity(identity auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := identity
	s.identities[cp.ID] = &cp
	s.byEmail[strings.ToLower(cp.Email)] = cp.ID
}

// PutRole registers a role in the catalogue.
func (s *Store) PutRole(role auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
}

// PutAssignment links an identity to a role.
func (s *Store) PutAssignment(a auth.RoleAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, a)
}

// RemoveAssignments drops every assignment of the identity. Used to model
// administrative role revocation.
func (s *Store) RemoveAssignments(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.IdentityID != identityID {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
}

// PutGrant attaches a permission grant to a role.
func (s *Store) PutGrant(roleID string, g auth.PermissionGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[roleID] = append(s.grants[roleID], g)
}

// MagicLinkCount reports the number of stored magic-link tokens.
func (s *Store) MagicLinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.magicLinks)
}

type identityStore Store

func (s *identityStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.identities[id]
	return &cp, nil
}

func (s *identityStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.EmailVerified = true
	identity.LoginCount++
	t := at
	identity.LastLoginAt = &t
	identity.UpdatedAt = at
	return nil
}

type magicLinkStore Store

func (s *magicLinkStore) Create(ctx context.Context, tok *auth.MagicLinkToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.magicLinks[cp.Token] = &cp
	return nil
}

func (s *magicLinkStore) Consume(ctx context.Context, token string, now time.Time) (*auth.MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.magicLinks[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	// Check-and-mark under the same lock: exactly one concurrent caller wins.
	if rec.Consumed {
		return nil, auth.ErrAlreadyUsedToken
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, auth.ErrExpiredToken
	}
	rec.Consumed = true
	t := now
	rec.ConsumedAt = &t
	cp := *rec
	return &cp, nil
}

type sessionStore Store

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[cp.Token] = &cp
	return nil
}

func (s *sessionStore) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *sessionStore) ConsumeExchange(ctx context.Context, exchangeToken string, now time.Time) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ExchangeToken != exchangeToken || sess.ExchangeToken == "" {
			continue
		}
		if sess.ExchangeExpiresAt == nil || !now.Before(*sess.ExchangeExpiresAt) {
			return nil, auth.ErrExpiredToken
		}
		sess.ExchangeToken = ""
		sess.ExchangeExpiresAt = nil
		cp := *sess
		return &cp, nil
	}
	return nil, auth.ErrInvalidToken
}

func (s *sessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *sessionStore) TouchActivity(ctx context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.LastActivityAt = at
	}
	return nil
}

type rbacStore Store

func (s *rbacStore) ActiveRoles(ctx context.Context, identityID string, at time.Time) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []auth.Role
	for _, a := range s.assignments {
		if a.IdentityID != identityID || !a.ActiveAt(at) {
			continue
		}
		if role, ok := s.roles[a.RoleID]; ok {
			roles = append(roles, role)
		}
	}
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].PermissionLevel != roles[j].PermissionLevel {
			return roles[i].PermissionLevel > roles[j].PermissionLevel
		}
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

func (s *rbacStore) GrantsForRole(ctx context.Context, roleID string) ([]auth.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := make([]auth.PermissionGrant, len(s.grants[roleID]))
	copy(grants, s.grants[roleID])
	return grants, nil
}
