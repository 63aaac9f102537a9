package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"confreg.org/internal/auth"
	"confreg.org/internal/mailer"
	"confreg.org/internal/obs"
)

// Pinger is what readiness needs from the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks backing-store health for /readyz.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options carries the deployment-specific wiring of the HTTP layer.
type Options struct {
	Version         string
	PublicBaseURL   string
	FrontendBaseURL string
	DashboardPath   string
	CORSOrigins     []string
	RatePerSecond   int
	RateBurst       int
}

// API is the HTTP layer over the auth core.
type API struct {
	mux     *chi.Mux
	auth    *auth.Service
	sender  mailer.Sender
	authCfg auth.Config
	opts    Options
	ready   ReadyProbe
}

func New(svc *auth.Service, sender mailer.Sender, rp ReadyProbe, opts Options) *API {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	a := &API{
		mux:     chi.NewRouter(),
		auth:    svc,
		sender:  sender,
		authCfg: svc.Config(),
		opts:    opts,
		ready:   rp,
	}

	r := a.mux
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(func(next http.Handler) http.Handler { return CORS(next, opts.CORSOrigins) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, 1<<20) })

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	// The verify endpoint is a plain GET from an email client; it lives
	// outside /api because it answers with a redirect, not JSON.
	r.Get("/auth/verify", a.handleVerify)

	loginRate := func(next http.Handler) http.Handler {
		return RateLimit(next, opts.RatePerSecond, opts.RateBurst)
	}
	r.Route("/api/auth", func(r chi.Router) {
		r.With(loginRate).Post("/request-login", a.handleRequestLogin)
		r.Post("/exchange", a.handleExchange)
		r.With(a.RequireSession).Get("/session", a.handleSession)
		r.Post("/logout", a.handleLogout)
	})

	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "confreg-api",
		"version": a.opts.Version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
