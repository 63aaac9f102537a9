package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"confreg.org/internal/audit"
	"confreg.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// queryCredential exists for constrained cross-origin clients that can
	// set neither headers nor cookies. Lowest precedence by design.
	queryCredential = "auth_token"
)

// credentialFromRequest reads the session credential with fixed precedence:
// Authorization bearer header, then the session cookie, then the query
// parameter. First match wins.
func credentialFromRequest(r *http.Request, cookieName string) string {
	if h := strings.TrimSpace(r.Header.Get(authHeader)); h != "" {
		if strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearer)) {
			if token := strings.TrimSpace(h[len(bearer):]); token != "" {
				return token
			}
		}
	}
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	return strings.TrimSpace(r.URL.Query().Get(queryCredential))
}

// sessionCookie builds the HTTP-only session cookie. SameSite=Lax keeps the
// cookie on top-level navigations while blocking cross-site subrequests.
func sessionCookie(cfg auth.Config, token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(ttl).UTC(),
		MaxAge:   int(ttl.Seconds()),
	}
}

// deletionCookie expires the session cookie so clients stop retrying a dead
// credential.
func deletionCookie(cfg auth.Config) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
}

// RequireSession resolves the request credential into a session and identity
// and attaches both to the context. Failures answer 401 with a machine
// code; a presented cookie is cleared even on unexpected errors so a broken
// client cannot wedge itself.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := credentialFromRequest(r, a.authCfg.CookieName)
		sess, identity, err := a.auth.Resolve(r.Context(), credential)
		if err != nil {
			a.clearCookieIfPresent(w, r)
			switch {
			case errors.Is(err, auth.ErrSessionExpired):
				writeErrorCode(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired")
			default:
				writeErrorCode(w, r, http.StatusUnauthorized, "NO_SESSION", "authentication required")
			}
			return
		}
		ctx := auth.ContextWithSession(r.Context(), sess)
		ctx = auth.ContextWithIdentity(ctx, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) clearCookieIfPresent(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(a.authCfg.CookieName); err == nil {
		http.SetCookie(w, deletionCookie(a.authCfg))
	}
}

// RequirePermission gates a route on a snapshotted permission. Every check,
// pass or fail, lands in the audit trail with its outcome; the check itself
// never touches the database; that is the point of snapshotting at login.
func (a *API) RequirePermission(key auth.PermissionKey) func(http.Handler) http.Handler {
	return a.guard(func(sess *auth.Session) error {
		return sess.RequirePermission(key)
	}, "auth.permission.check", map[string]any{"permission": key.String()})
}

// RequirePermissionLevel gates a route on the primary role's level.
func (a *API) RequirePermissionLevel(min int) func(http.Handler) http.Handler {
	return a.guard(func(sess *auth.Session) error {
		return sess.RequirePermissionLevel(min)
	}, "auth.level.check", map[string]any{"min_level": min})
}

// RequireRole gates a route on snapshot role membership.
func (a *API) RequireRole(name string) func(http.Handler) http.Handler {
	return a.guard(func(sess *auth.Session) error {
		return sess.RequireRole(name)
	}, "auth.role.check", map[string]any{"role": name})
}

// RequireAnyRole gates a route on membership in at least one of the roles.
func (a *API) RequireAnyRole(names ...string) func(http.Handler) http.Handler {
	return a.guard(func(sess *auth.Session) error {
		return sess.RequireAnyRole(names...)
	}, "auth.role.check", map[string]any{"roles": strings.Join(names, ",")})
}

func (a *API) guard(check func(*auth.Session) error, event string, fields map[string]any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := auth.SessionFromContext(r.Context())
			if !ok {
				writeErrorCode(w, r, http.StatusUnauthorized, "NO_SESSION", "authentication required")
				return
			}
			err := check(sess)

			entry := make(map[string]any, len(fields)+2)
			for k, v := range fields {
				entry[k] = v
			}
			entry["identity_id"] = sess.IdentityID
			entry["granted"] = err == nil
			_ = audit.LogEvent(r.Context(), event, entry)

			if err != nil {
				writeError(w, r, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
