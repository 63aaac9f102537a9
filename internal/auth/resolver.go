package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"confreg.org/internal/audit"
	"confreg.org/internal/obs"
)

// Resolve turns a session credential into the session with its snapshotted
// roles and permissions plus the identity it belongs to. Expiry is checked
// lazily against the row's fixed expires_at; activity is not extended, only
// recorded. The touch runs on a background context so a slow write never
// delays the request.
func (s *Service) Resolve(ctx context.Context, credential string) (*Session, *Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		obs.ObserveResolution("no_credential")
		return nil, nil, ErrNoCredential
	}

	sess, err := s.store.Sessions().FindByToken(ctx, credential)
	if err != nil {
		obs.ObserveResolution("not_found")
		return nil, nil, ErrNoCredential
	}
	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		obs.ObserveResolution("expired")
		return nil, nil, ErrSessionExpired
	}

	identity, err := s.store.Identities().Find(ctx, sess.IdentityID)
	if err != nil {
		// An unexpected store failure degrades to "unauthenticated", not a
		// crashed handler.
		obs.ObserveResolution("error")
		return nil, nil, ErrNoCredential
	}

	go func(token string) {
		if err := s.store.Sessions().TouchActivity(context.Background(), token, now); err != nil {
			obs.Named("auth").Warn("touch session activity", zap.Error(err))
		}
	}(sess.Token)

	obs.ObserveResolution("ok")
	return sess, identity, nil
}

// Logout deletes the session row. Best effort: an error here still clears the
// client cookie at the HTTP layer, so the worst case is a row that lazy
// expiry cleans up.
func (s *Service) Logout(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}
	if err := s.store.Sessions().Delete(ctx, credential); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	_ = audit.LogEvent(ctx, "auth.logout", nil)
	return nil
}
