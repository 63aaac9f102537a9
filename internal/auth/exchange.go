package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"confreg.org/internal/audit"
	"confreg.org/internal/obs"
)

// Exchange trades a short-lived exchange token for its session. The redirect
// after magic-link verification carries only this 60-second token; the real
// session credential never appears in a URL, referrer header or access log.
// The exchange fields are cleared in the same conditional write that matches
// them, so a second redemption finds nothing even inside the window.
func (s *Service) Exchange(ctx context.Context, exchangeToken string) (*Session, *Identity, error) {
	exchangeToken = strings.TrimSpace(exchangeToken)
	if exchangeToken == "" {
		return nil, nil, ErrInvalidToken
	}
	now := s.now().UTC()

	sess, err := s.store.Sessions().ConsumeExchange(ctx, exchangeToken, now)
	if err != nil {
		if TokenError(err) {
			result := "invalid"
			if errors.Is(err, ErrExpiredToken) {
				result = "expired"
			}
			obs.ObserveExchange(result)
			_ = audit.LogEvent(ctx, "auth.exchange.rejected", map[string]any{
				"reason": result,
			})
		}
		return nil, nil, err
	}

	identity, err := s.store.Identities().Find(ctx, sess.IdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("load identity: %w", err)
	}

	obs.ObserveExchange("ok")
	_ = audit.LogEvent(ctx, "auth.exchange", map[string]any{
		"identity_id": sess.IdentityID,
	})
	return sess, identity, nil
}
