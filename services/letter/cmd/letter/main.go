package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"coverletterai/internal/metrics"
	"coverletterai/internal/ratelimit"
	"coverletterai/internal/util"
	"coverletterai/pkg/ai"
	"coverletterai/services/letter/internal/app"
	"coverletterai/services/letter/internal/config"
	"coverletterai/services/letter/internal/server"
)

const (
	rateWindow        = time.Minute
	writeTimeoutSlack = 30 * time.Second
)

func main() {
	path := os.Getenv("LETTER_CONFIG")
	if path == "" {
		path = config.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	genTimeout, err := config.ParseDuration("generationTimeout", cfg.GenerationTimeout)
	if err != nil {
		log.Fatalf("failed to parse generation timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	genCfg := ai.GeneratorConfig{
		Provider: cfg.GenerationProvider,
		BaseURL:  cfg.GenerationBaseURL,
		APIKey:   cfg.GenerationAPIKey,
		Model:    cfg.GenerationModel,
		Timeout:  genTimeout,
	}
	appCore, err := app.New(ctx, app.Config{
		DatabaseURL:           cfg.DatabaseURL,
		UserStore:             cfg.UserStore,
		RedisURL:              cfg.RedisURL,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		DraftTTL:              cfg.DraftTTLOrDefault(),
		FirebaseProjectID:     cfg.FirebaseProjectID,
		ServiceAccountKeyJSON: cfg.ServiceAccountKeyJSON,
		ServiceAccountKeyPath: cfg.ServiceAccountKeyPath,
		JWKSURL:               cfg.JWKSURL,
		JWTLeeway:             jwtLeeway,
		Generation:            genCfg,
		SessionSecret:         cfg.SessionSecret,
		Metrics:               collector,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Error("close app", "err", err)
		}
	}()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	authLimiter, err := ratelimit.NewFixedWindowLimiter(appCore.Redis(), "letters:ratelimit:auth", cfg.AuthRateLimitPerMinute, rateWindow)
	if err != nil {
		log.Fatalf("failed to init auth limiter: %v", err)
	}
	generateLimiter, err := ratelimit.NewFixedWindowLimiter(appCore.Redis(), "letters:ratelimit:generate", cfg.GenerateRateLimitPerMinute, rateWindow)
	if err != nil {
		log.Fatalf("failed to init generate limiter: %v", err)
	}

	httpServer := server.New(server.Config{
		App:                 appCore,
		AuthLimiter:         authLimiter,
		GenerateLimiter:     generateLimiter,
		Metrics:             collector,
		Gatherer:            registry,
		AllowedOrigins:      cfg.AllowedOrigins,
		TrustedProxies:      trusted,
		SessionCookieSecure: cfg.SessionCookieSecure,
		MaxUploadBytes:      cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      server.WriteTimeout(genCfg.EffectiveTimeout(), writeTimeoutSlack),
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
