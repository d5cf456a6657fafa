// Command server runs the disaster intelligence service.
//
// # Usage
//
//	server --database postgres://localhost/disasterintel --port 8080
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (see internal/config)
// - An optional YAML file for per-feed cache TTLs
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relief-net/disaster-intel/db/migrate"
	"github.com/relief-net/disaster-intel/internal/ai"
	"github.com/relief-net/disaster-intel/internal/alerts"
	"github.com/relief-net/disaster-intel/internal/api"
	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/cache"
	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/credibility"
	"github.com/relief-net/disaster-intel/internal/decay"
	"github.com/relief-net/disaster-intel/internal/feeds"
	"github.com/relief-net/disaster-intel/internal/geocode"
	"github.com/relief-net/disaster-intel/internal/ratelimit"
	"github.com/relief-net/disaster-intel/internal/reports"
	"github.com/relief-net/disaster-intel/internal/routing"
	"github.com/relief-net/disaster-intel/internal/safezone"
	"github.com/relief-net/disaster-intel/internal/scoring"
	"github.com/relief-net/disaster-intel/internal/secrets"
	"github.com/relief-net/disaster-intel/internal/store"
)

func main() {
	var (
		port       = flag.Int("port", 8080, "HTTP server port")
		dbURL      = flag.String("database", "", "Database URL (postgres://...)")
		configFile = flag.String("config", "", "Optional YAML config file (feed TTLs)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("disaster-intel-server v1.0.0")
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// Secrets backend resolves upstream API keys (environment by default,
	// 1Password Connect when configured).
	resolver := secrets.NewResolver(secrets.ConfigFromEnv(), logger)
	orsKey := resolveKey(resolver, "ORS_API_KEY", cfg.ORSAPIKey, logger)
	hereKey := resolveKey(resolver, "HERE_API_KEY", cfg.HEREAPIKey, logger)
	googleKey := resolveKey(resolver, "GOOGLE_MAPS_API_KEY", cfg.GoogleMapsAPIKey, logger)
	openAIKey := resolveKey(resolver, "OPENAI_API_KEY", cfg.OpenAIAPIKey, logger)
	geminiKey := resolveKey(resolver, "GEMINI_API_KEY", cfg.GeminiAPIKey, logger)
	firmsKey := resolveKey(resolver, "NASA_FIRMS_API_KEY", cfg.NASAFirmsAPIKey, logger)

	// Connect to database
	if *dbURL == "" {
		*dbURL = cfg.DatabaseURL
	}
	if *dbURL == "" {
		*dbURL = "postgres://localhost:5432/disasterintel?sslmode=disable"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.NewStoreFromURL(ctx, *dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Run database migrations before starting services
	migCtx, migCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer migCancel()
	if err := migrate.Run(migCtx, db.Pool(), logger); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	// Optional Redis for response caching and distributed rate limits
	var responseCache *cache.Cache
	if cfg.RedisURL != "" {
		responseCache, err = cache.New(cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("redis disabled - connection failed", "error", err)
		} else {
			defer responseCache.Close()
			logger.Info("redis enabled")
		}
	} else {
		logger.Info("redis disabled - REDIS_URL not set, rate limits are per-process")
	}

	limiter := ratelimit.New(nil)
	if responseCache != nil {
		limiter = ratelimit.New(responseCache.Client())
	}

	// Scoring and feed ingestion
	scorer := scoring.NewScorer()
	adapters := []feeds.Adapter{
		feeds.NewFIRMSAdapter(firmsKey, scorer, logger),
		feeds.NewNOAAAdapter(scorer, logger),
		feeds.NewUSGSAdapter(scorer, logger),
		feeds.NewGDACSAdapter(scorer, logger),
		feeds.NewFEMAAdapter(scorer, logger),
		feeds.NewCalFireAdapter(scorer, logger),
		feeds.NewCalOESAdapter(scorer, logger),
	}
	feedManager := feeds.NewManager(db, adapters, cfg.FeedTTLs, logger)

	refreshWorker := feeds.NewRefreshWorker(feedManager, feeds.DefaultRefreshWorkerConfig(), logger)
	refreshWorker.Start(context.Background())
	logger.Info("feed refresh worker started")

	// AI providers (optional - primary OpenAI, fallback Gemini)
	var providers []ai.Provider
	if openAIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(openAIKey))
		logger.Info("openai provider enabled (primary)")
	}
	if geminiKey != "" {
		gemini, err := ai.NewGeminiProvider(context.Background(), geminiKey)
		if err != nil {
			logger.Warn("gemini provider disabled", "error", err)
		} else {
			providers = append(providers, gemini)
			logger.Info("gemini provider enabled (fallback)")
		}
	}
	if len(providers) == 0 {
		logger.Warn("no ai providers configured - enhancement disabled")
	}
	aiSvc := ai.NewService(providers, db, logger)

	// Core services
	credSvc := credibility.NewService(db, logger)
	decaySvc := decay.NewService()
	geocoder := geocode.NewClient(logger)
	reportSvc := reports.NewService(db, feedManager, scorer, credSvc, aiSvc, geocoder, decaySvc, logger)
	alertSvc := alerts.NewService(db, feedManager, logger)

	// Safe zones with external shelter feed
	shelterClient := safezone.NewHIFLDClient(logger)
	zoneSvc := safezone.NewService(db, shelterClient, logger)

	// Routing (requires the primary provider key)
	var routeSvc *routing.Service
	if orsKey != "" {
		var fallback routing.Router
		if hereKey != "" {
			fallback = routing.NewHEREClient(hereKey, logger)
		}
		var baseline routing.BaselineRouter
		if googleKey != "" {
			baseline = routing.NewGoogleClient(googleKey, logger)
		}
		routeSvc = routing.NewService(db, feedManager, routing.NewORSClient(orsKey, logger), fallback, baseline, logger)
		logger.Info("route service enabled",
			"fallback", hereKey != "",
			"baseline", googleKey != "")
	} else {
		logger.Warn("route service disabled - ORS_API_KEY not set")
	}

	// Identity provider
	identity := auth.NewClient(cfg.IdentityProviderURL, cfg.IdentityProviderKey, logger)

	// Create API server
	apiServer := api.NewServer(api.Deps{
		Config:   cfg,
		Store:    db,
		Reports:  reportSvc,
		Alerts:   alertSvc,
		Zones:    zoneSvc,
		Routes:   routeSvc,
		Feeds:    feedManager,
		Verifier: identity,
		Identity: identity,
		Limiter:  limiter,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", "port", *port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	refreshWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// resolveKey prefers the secrets backend, falling back to the plain
// environment value already loaded into the config.
func resolveKey(resolver secrets.Resolver, name, fromEnv string, logger *slog.Logger) string {
	value, err := resolver.Resolve(name)
	if err != nil {
		logger.Warn("secret resolution failed", "name", name, "error", err)
		return fromEnv
	}
	if value == "" {
		return fromEnv
	}
	return value
}
