package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"confreg.org/internal/auth"
	"confreg.org/internal/obs"
)

type requestLoginRequest struct {
	Email string `json:"email"`
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	EmailVerified bool   `json:"emailVerified"`
}

type sessionResponse struct {
	User        userResponse        `json:"user"`
	Roles       []auth.RoleSnapshot `json:"roles"`
	Permissions auth.PermissionSet  `json:"permissions"`
	PrimaryRole auth.RoleSnapshot   `json:"primaryRole"`
	IssuedAt    time.Time           `json:"issuedAt"`
	ExpiresAt   time.Time           `json:"expiresAt"`
}

func toUserResponse(identity *auth.Identity) userResponse {
	return userResponse{
		ID:            identity.ID,
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		EmailVerified: identity.EmailVerified,
	}
}

func toSessionResponse(sess *auth.Session, identity *auth.Identity) sessionResponse {
	return sessionResponse{
		User:        toUserResponse(identity),
		Roles:       sess.Roles,
		Permissions: sess.Permissions,
		PrimaryRole: sess.PrimaryRole(),
		IssuedAt:    sess.IssuedAt,
		ExpiresAt:   sess.ExpiresAt,
	}
}

// handleRequestLogin always answers the same success body, registered email
// or not: the endpoint must not be an account-enumeration oracle. The actual
// issue-and-send work happens only for known identities, and delivery runs in
// the background so SMTP latency or failure never shows in the response
// either.
func (a *API) handleRequestLogin(w http.ResponseWriter, r *http.Request) {
	var req requestLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	obs.ObserveLoginRequest()
	link, err := a.auth.RequestLogin(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			obs.Named("http").Error("request login", zap.Error(err))
		}
		// Fall through: the response is identical in every case.
	} else {
		go a.deliverLoginLink(link)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) deliverLoginLink(link *auth.LoginLink) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	verifyURL := strings.TrimRight(a.opts.PublicBaseURL, "/") +
		"/auth/verify?token=" + url.QueryEscape(link.Token.Token)
	if err := a.sender.SendLoginLink(ctx, link.Identity.Email, link.Identity.DisplayName, verifyURL); err != nil {
		obs.Named("http").Error("send login link",
			zap.String("identity_id", link.Identity.ID),
			zap.Error(err),
		)
	}
}

// handleVerify consumes the magic link and redirects to the frontend with
// only the 60-second exchange token in the URL. The long-lived session token
// stays out of URLs, referrer headers and access logs. All failure kinds
// collapse into one user-facing page; the distinction lives in logs and
// metrics.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sess, _, err := a.auth.VerifyMagicLink(r.Context(), token)
	if err != nil {
		if !auth.TokenError(err) {
			obs.Named("http").Error("verify magic link", zap.Error(err))
		}
		a.writeVerifyErrorPage(w)
		return
	}

	redirect := strings.TrimRight(a.opts.FrontendBaseURL, "/") + a.opts.DashboardPath +
		"?auth=" + url.QueryEscape(sess.ExchangeToken)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (a *API) writeVerifyErrorPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Sign-in link problem</title></head>
<body>
<h1>This sign-in link is invalid or has expired</h1>
<p>Sign-in links work once and expire after 15 minutes. Please request a new one.</p>
</body>
</html>
`))
}

// handleExchange trades the exchange token for the session cookie. The token
// in the response body is a configuration choice for cookie-less cross-origin
// clients; same-site deployments turn it off.
func (a *API) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sess, identity, err := a.auth.Exchange(r.Context(), req.Token)
	if err != nil {
		if !auth.TokenError(err) {
			obs.Named("http").Error("exchange", zap.Error(err))
		}
		writeError(w, r, http.StatusBadRequest, "exchange token is invalid or expired")
		return
	}

	ttl := time.Until(sess.ExpiresAt)
	http.SetCookie(w, sessionCookie(a.authCfg, sess.Token, ttl))

	payload := map[string]any{
		"success": true,
		"user":    toUserResponse(identity),
	}
	if a.authCfg.ExposeTokenInBody {
		payload["sessionToken"] = sess.Token
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleSession runs behind RequireSession; by the time it executes the
// snapshot is already on the context.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	identity, ok2 := auth.IdentityFromContext(r.Context())
	if !ok || !ok2 {
		writeErrorCode(w, r, http.StatusUnauthorized, "NO_SESSION", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, identity))
}

// handleLogout deletes the session row best-effort and always clears the
// cookie, so the client ends up signed out even when the store hiccups.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	credential := credentialFromRequest(r, a.authCfg.CookieName)
	if credential != "" {
		if err := a.auth.Logout(r.Context(), credential); err != nil {
			obs.Named("http").Warn("logout", zap.Error(err))
		}
	}
	http.SetCookie(w, deletionCookie(a.authCfg))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
