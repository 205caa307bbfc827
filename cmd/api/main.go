package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"justping.io/internal/auth"
	"justping.io/internal/config"
	"justping.io/internal/httpapi"
	"justping.io/internal/identity"
	"justping.io/internal/notify"
	"justping.io/internal/obs"
)

var version = "0.3.1"

func main() {
	cfg := config.Load()
	log := obs.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	obs.Init()

	if cfg.DatabaseURL == "" {
		log.Fatal("JUSTPING_PG_DSN is required")
	}
	db, err := auth.OpenPG(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("open database", "err", err)
	}
	defer func() { _ = db.Close() }()

	store := auth.NewPGStore(db)

	var blacklist auth.Blacklist
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		blacklist = auth.NewRedisBlacklist(rdb, "jp:blacklist")
		log.Infow("token blacklist backend", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		blacklist = auth.NewPGBlacklist(db)
		log.Infow("token blacklist backend", "backend", "postgres")
	}

	ctx := context.Background()
	provider, err := identity.NewFirebase(ctx, cfg.FirebaseCredentials, cfg.FirebaseAPIKey, cfg.ProviderTimeout)
	if err != nil {
		log.Fatalw("init identity provider", "err", err)
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalw("init token service", "err", err)
	}

	opts := []auth.ServiceOption{
		auth.WithLogger(log),
		auth.WithResetBaseURL(cfg.ResetBaseURL),
	}
	var publisher *notify.AMQPPublisher
	if cfg.AMQPURL != "" {
		publisher = notify.NewAMQPPublisher(cfg.AMQPURL, cfg.EmailQueue, log)
		defer publisher.Close()
		opts = append(opts, auth.WithNotifier(publisher))
	} else {
		log.Warn("JUSTPING_AMQP_URL not set; welcome and reset emails are disabled")
	}

	svc, err := auth.NewService(store, blacklist, provider, tokens, opts...)
	if err != nil {
		log.Fatalw("init auth service", "err", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, httpapi.Options{
		Logger:             log,
		Version:            version,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		ReadyTimeout:       cfg.DBTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Infow("starting justping-auth", "version", version, "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("listen", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
