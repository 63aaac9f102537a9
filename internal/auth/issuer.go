package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenKind selects the namespace a token is issued into. Kinds never share a
// lookup: a magic-link token is queried only against the magic-link column, a
// session token only against the session column, so a byte-identical string
// can never cross namespaces.
type TokenKind int

const (
	KindMagicLink TokenKind = iota
	KindSession
	KindExchange
)

func (k TokenKind) String() string {
	switch k {
	case KindMagicLink:
		return "magic_link"
	case KindSession:
		return "session"
	case KindExchange:
		return "exchange"
	default:
		return "unknown"
	}
}

const tokenBytes = 32 // 256 bits of randomness, hex-encoded to 64 chars

// newToken draws a fresh credential from the CSPRNG. Failure here means the
// kernel entropy source is broken; nothing sensible can continue.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// issue mints a token of the given kind and computes its expiry from the
// service clock and config. The caller persists it into the kind-appropriate
// column.
func (s *Service) issue(kind TokenKind) (token string, expiresAt time.Time, err error) {
	token, err = newToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	switch kind {
	case KindMagicLink:
		expiresAt = now.Add(s.cfg.MagicLinkTTL)
	case KindSession:
		expiresAt = now.Add(s.cfg.SessionTTL)
	case KindExchange:
		expiresAt = now.Add(s.cfg.ExchangeTTL)
	default:
		return "", time.Time{}, fmt.Errorf("unknown token kind %d", kind)
	}
	return token, expiresAt, nil
}
