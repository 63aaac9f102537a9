package auth

import "errors"

// Token invalidity comes in three flavours. They are logged distinctly but
// collapsed into one generic message at the magic-link boundary so an attacker
// cannot tell a guessed token from an expired or replayed one.
var (
	ErrInvalidToken     = errors.New("auth: token not found")
	ErrExpiredToken     = errors.New("auth: token expired")
	ErrAlreadyUsedToken = errors.New("auth: token already used")
)

var (
	ErrNoCredential   = errors.New("auth: no credential presented")
	ErrSessionExpired = errors.New("auth: session expired")
	ErrNotFound       = errors.New("auth: not found")
)

// Authorization failures are safe to surface with the specific missing
// requirement: the caller already proved identity.
var (
	ErrInsufficientPermission = errors.New("auth: insufficient permission")
	ErrInsufficientLevel      = errors.New("auth: insufficient permission level")
	ErrMissingRole            = errors.New("auth: missing role")
)

// TokenError reports whether err is one of the three token-invalidity kinds.
func TokenError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrAlreadyUsedToken)
}
