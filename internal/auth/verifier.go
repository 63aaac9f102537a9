package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"confreg.org/internal/audit"
	"confreg.org/internal/obs"
)

// LoginLink is a freshly issued magic-link credential for one identity.
// The HTTP layer turns it into a URL and hands it to the mailer.
type LoginLink struct {
	Identity *Identity
	Token    MagicLinkToken
}

// RequestLogin issues a new magic-link token for the identity registered
// under email. Unknown or suspended identities yield ErrNotFound; the caller
// must answer identically either way so the endpoint cannot be used for
// account enumeration. Earlier unconsumed links stay valid until their own
// expiry.
func (s *Service) RequestLogin(ctx context.Context, email string) (*LoginLink, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrNotFound
	}
	identity, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if identity.Status == IdentityStatusSuspended {
		return nil, ErrNotFound
	}

	token, expiresAt, err := s.issue(KindMagicLink)
	if err != nil {
		return nil, err
	}
	rec := MagicLinkToken{
		Token:      token,
		IdentityID: identity.ID,
		IssuedAt:   s.now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := s.store.MagicLinks().Create(ctx, &rec); err != nil {
		return nil, fmt.Errorf("store magic link: %w", err)
	}

	_ = audit.LogEvent(ctx, "auth.login.requested", map[string]any{
		"identity_id": identity.ID,
		"expires_at":  expiresAt,
	})
	return &LoginLink{Identity: identity, Token: rec}, nil
}

// VerifyMagicLink validates and consumes a magic-link token, then promotes
// the identity into a new session with roles and permissions snapshotted at
// this instant. Consumption is the critical section: it happens first, as one
// atomic conditional write, so a crash mid-flow leaves at worst a consumed
// token with no session (the user re-requests a link), never a live session
// traceable to a still-usable token.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*Session, *Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrInvalidToken
	}
	now := s.now().UTC()

	rec, err := s.store.MagicLinks().Consume(ctx, token, now)
	if err != nil {
		if TokenError(err) {
			obs.ObserveVerification(verifyResult(err))
			_ = audit.LogEvent(ctx, "auth.login.rejected", map[string]any{
				"reason": verifyResult(err),
			})
		}
		return nil, nil, err
	}

	identity, err := s.store.Identities().Find(ctx, rec.IdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("load identity: %w", err)
	}
	if identity.Status == IdentityStatusSuspended {
		obs.ObserveVerification("suspended")
		return nil, nil, ErrInvalidToken
	}

	// Possession of the link proves control of the inbox.
	if err := s.store.Identities().RecordLogin(ctx, identity.ID, now); err != nil {
		return nil, nil, fmt.Errorf("record login: %w", err)
	}

	roles, perms, err := s.Aggregate(ctx, identity.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate roles: %w", err)
	}

	sessionToken, sessionExpiry, err := s.issue(KindSession)
	if err != nil {
		return nil, nil, err
	}
	exchangeToken, exchangeExpiry, err := s.issue(KindExchange)
	if err != nil {
		return nil, nil, err
	}
	sess := &Session{
		Token:             sessionToken,
		IdentityID:        identity.ID,
		IssuedAt:          now,
		ExpiresAt:         sessionExpiry,
		Roles:             roles,
		Permissions:       perms,
		LastActivityAt:    now,
		ExchangeToken:     exchangeToken,
		ExchangeExpiresAt: &exchangeExpiry,
	}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	obs.ObserveVerification("ok")
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"identity_id":  identity.ID,
		"primary_role": sess.PrimaryRole().Name,
		"expires_at":   sess.ExpiresAt,
	})
	return sess, identity, nil
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrAlreadyUsedToken):
		return "already_used"
	default:
		return "invalid"
	}
}
