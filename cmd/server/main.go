package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultralight/host/internal/adapters"
	"github.com/ultralight/host/internal/apps"
	"github.com/ultralight/host/internal/auth"
	"github.com/ultralight/host/internal/billing"
	"github.com/ultralight/host/internal/calllog"
	"github.com/ultralight/host/internal/codecache"
	"github.com/ultralight/host/internal/config"
	"github.com/ultralight/host/internal/cryptoenv"
	"github.com/ultralight/host/internal/db"
	"github.com/ultralight/host/internal/httpapi"
	"github.com/ultralight/host/internal/mcpserver"
	"github.com/ultralight/host/internal/permissions"
	"github.com/ultralight/host/internal/ratelimit"
	"github.com/ultralight/host/internal/sandbox"
	"github.com/ultralight/host/internal/session"
	"github.com/ultralight/host/internal/setup"
	"github.com/ultralight/host/internal/storepg"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "ultralight-host").Logger()

	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	cfg, err := config.Load(env("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	envelope, err := cryptoenv.New(cfg.EncryptionMasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build crypto envelope")
	}

	repo := storepg.New(pool, envelope, log.With().Str("component", "storepg").Logger())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	appLoader := apps.New(repo)
	verifier := auth.New(repo, log.With().Str("component", "auth").Logger())
	permsResolver := permissions.New(repo, log.With().Str("component", "permissions").Logger())
	rateLimiter := ratelimit.New(
		ratelimit.NewRedisStore(redisClient),
		ratelimit.EndpointLimits{
			InitializePerMinute:   cfg.RateLimits.InitializePerMinute,
			ToolsListPerMinute:    cfg.RateLimits.ToolsListPerMinute,
			ToolsCallPerMinute:    cfg.RateLimits.ToolsCallPerMinute,
			WeeklyCallLimitByTier: cfg.RateLimits.WeeklyCallLimitByTier,
		},
		log.With().Str("component", "ratelimit").Logger(),
	)

	objectStoreBaseURL := cfg.ObjectStore.Endpoint + "/" + cfg.ObjectStore.Bucket
	objectStore := adapters.NewHTTPObjectStore(objectStoreBaseURL, log.With().Str("component", "objectstore").Logger())
	codeCache := codecache.New(objectStore)

	orchestrator := setup.New(codeCache, repo, repo, repo, envelope, log.With().Str("component", "setup").Logger())

	remoteEngine := adapters.NewRemoteEngine(cfg.SandboxEngineURL, log.With().Str("component", "sandbox-engine").Logger())
	gateway := sandbox.New(remoteEngine)

	settler := billing.New(repo, log.With().Str("component", "billing").Logger())
	callLogger := calllog.New(ctx, repo, log.With().Str("component", "calllog").Logger())
	sequencer := session.New()

	openRouter := adapters.NewOpenRouterCaller(log.With().Str("component", "openrouter").Logger())
	loopback := adapters.NewLoopbackCaller(cfg.BaseURL, log.With().Str("component", "interapp").Logger())
	caps := adapters.New(repo, openRouter, loopback, log.With().Str("component", "adapters").Logger())

	dispatcher := mcpserver.New(
		appLoader,
		verifier,
		permsResolver,
		rateLimiter,
		orchestrator,
		repo,
		gateway,
		settler,
		callLogger,
		sequencer,
		caps,
		envelope,
		cfg.BaseURL,
		log.With().Str("component", "mcpserver").Logger(),
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(dispatcher),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
