package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"confreg.org/internal/auth"
)

func TestCredentialPrecedence(t *testing.T) {
	newReq := func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/auth/session?auth_token=from-query", nil)
	}

	r := newReq()
	r.Header.Set("Authorization", "Bearer from-header")
	r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: "from-cookie"})
	if got := credentialFromRequest(r, auth.DefaultCookieName); got != "from-header" {
		t.Fatalf("header should win, got %q", got)
	}

	r = newReq()
	r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: "from-cookie"})
	if got := credentialFromRequest(r, auth.DefaultCookieName); got != "from-cookie" {
		t.Fatalf("cookie should beat query, got %q", got)
	}

	r = newReq()
	if got := credentialFromRequest(r, auth.DefaultCookieName); got != "from-query" {
		t.Fatalf("query is the fallback, got %q", got)
	}

	// A malformed bearer header falls through to the next source.
	r = newReq()
	r.Header.Set("Authorization", "Bearer ")
	r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: "from-cookie"})
	if got := credentialFromRequest(r, auth.DefaultCookieName); got != "from-cookie" {
		t.Fatalf("empty bearer should be skipped, got %q", got)
	}
}

func TestCredentialPrecedenceEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutIdentity(auth.Identity{
		ID:     "id-bob",
		Email:  "bob@example.org",
		Status: auth.IdentityStatusActive,
	})
	ada := env.login(t, "ada@example.org")
	bob := env.login(t, "bob@example.org")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+ada.Token)
	req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: bob.Token})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.User.ID != "id-ada" {
		t.Fatalf("resolved %q, header credential must take precedence", payload.User.ID)
	}
}

func TestSessionViaQueryParameter(t *testing.T) {
	env := newTestEnv(t)
	sess := env.login(t, "ada@example.org")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session?auth_token="+sess.Token, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func guardedRequest(t *testing.T, env *testEnv, mw func(http.Handler) http.Handler, sess *auth.Session) *httptest.ResponseRecorder {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if sess != nil {
		req = req.WithContext(auth.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardsForBoardMember(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutRole(auth.Role{ID: "R_BOARD", Name: "board_member", DisplayName: "Board member", PermissionLevel: 80})
	env.store.PutAssignment(auth.RoleAssignment{IdentityID: "id-ada", RoleID: "R_BOARD", IsActive: true})
	env.store.PutGrant("R_BOARD", auth.PermissionGrant{Resource: "abstracts", Action: "review", Scope: "all"})
	sess := env.login(t, "ada@example.org")

	cases := []struct {
		name string
		mw   func(http.Handler) http.Handler
		want int
	}{
		{"level 50 passes", env.api.RequirePermissionLevel(50), http.StatusNoContent},
		{"level 90 denied", env.api.RequirePermissionLevel(90), http.StatusForbidden},
		{"granted permission passes", env.api.RequirePermission(auth.PermissionKey{Resource: "abstracts", Action: "review"}), http.StatusNoContent},
		{"missing permission denied", env.api.RequirePermission(auth.PermissionKey{Resource: "members", Action: "manage"}), http.StatusForbidden},
		{"missing role denied", env.api.RequireRole("admin"), http.StatusForbidden},
		{"any-of passes", env.api.RequireAnyRole("admin", "board_member"), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := guardedRequest(t, env, tc.mw, sess); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestGuardWithoutSessionIs401(t *testing.T) {
	env := newTestEnv(t)
	rec := guardedRequest(t, env, env.api.RequireRole("admin"), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
