package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"confreg.org/internal/auth"
	"confreg.org/internal/config"
	"confreg.org/internal/httpapi"
	"confreg.org/internal/ids"
	"confreg.org/internal/mailer"
	"confreg.org/internal/obs"
	"confreg.org/internal/store/memory"
	"confreg.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}

	obs.InitLogger(obs.LogConfig{Env: cfg.Env, Level: cfg.LogLevel})
	defer func() { _ = obs.Sync() }()
	obs.Init()
	log := obs.Named("main")

	// Postgres when a DSN is configured, the in-process store otherwise.
	// The memory store is for local development only: credentials do not
	// survive a restart and instances cannot share sessions.
	var (
		store  auth.Store
		pinger httpapi.Pinger
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatal("open postgres", zap.Error(err))
		}
		defer func() { _ = pgStore.Close() }()
		store, pinger = pgStore, pgStore
	} else {
		log.Warn("no CONFREG_PG_DSN set, using in-memory store")
		mem := memory.New()
		devEmail := os.Getenv("CONFREG_DEV_EMAIL")
		if devEmail == "" {
			devEmail = "dev@localhost"
		}
		now := time.Now().UTC()
		mem.PutIdentity(auth.Identity{
			ID:          ids.New(),
			Email:       devEmail,
			DisplayName: "Dev User",
			Status:      auth.IdentityStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		log.Info("seeded development identity", zap.String("email", devEmail))
		store = mem
	}

	svc, err := auth.NewService(store, auth.WithConfig(cfg.AuthConfig()))
	if err != nil {
		log.Fatal("build auth service", zap.Error(err))
	}

	var sender mailer.Sender
	if cfg.SMTP.Enabled() {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
	} else {
		log.Warn("SMTP not configured, login links will be logged")
		sender = mailer.LogSender{}
	}

	api := httpapi.New(svc, sender, httpapi.ReadyProbe{Store: pinger}, httpapi.Options{
		Version:         version,
		PublicBaseURL:   cfg.PublicBaseURL,
		FrontendBaseURL: cfg.FrontendBaseURL,
		DashboardPath:   cfg.DashboardPath,
		CORSOrigins:     cfg.CORSOrigins,
		RatePerSecond:   cfg.RateLimit.PerSecond,
		RateBurst:       cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting confreg-api", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Info("stopped")
}
