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

	"github.com/sendmedown/bio-quantum-platform/internal/api"
	"github.com/sendmedown/bio-quantum-platform/internal/api/middleware"
	"github.com/sendmedown/bio-quantum-platform/internal/audit"
	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/cache"
	"github.com/sendmedown/bio-quantum-platform/internal/config"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/handlers"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
	"github.com/sendmedown/bio-quantum-platform/internal/ledger"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	logger = logger.With().Str("instance", cfg.InstanceID).Logger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	gate, err := auth.NewJWTGate(auth.GateConfig{
		Secret:    cfg.JWTSecret,
		PublicKey: cfg.JWTPublicKey,
		Issuer:    cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("identity gate configuration invalid")
	}

	strands := store.NewStrandStore()
	auditLog := audit.New()

	// Optional durable archive: Postgres wins over SQLite.
	var archive store.Archive
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		archive = pg
		logger.Info().Msg("connected to PostgreSQL archive")
	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		archive = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite archive")
	}
	if archive != nil && cfg.ArchiveSealKey != "" {
		sealer, err := crypto.NewSealer([]byte(cfg.ArchiveSealKey))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid ARCHIVE_SEAL_KEY")
		}
		archive = store.NewSealedArchive(archive, sealer)
		logger.Info().Msg("archive content sealing enabled")
	}
	if archive != nil {
		defer archive.Close()
		restore(ctx, logger, archive, strands, auditLog)
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	var redisClient *redis.Client
	var cacheBackend cache.Backend
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		cacheBackend = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		cacheBackend = cache.NewMemory(10 * time.Minute)
		logger.Info().Msg("redis not configured, using in-process query cache")
	}
	queryCache := cache.New(cacheBackend, cfg.CacheTTL, logger)

	h := hub.NewHub(logger, cfg.MaxSessionClients)
	listing := hub.NewListing()

	opts := ledger.Options{
		Gate:           gate,
		Store:          strands,
		Cache:          queryCache,
		Audit:          auditLog,
		Hub:            h,
		Archive:        archive,
		InstanceID:     cfg.InstanceID,
		ArchiveTimeout: cfg.ArchiveTimeout,
		Logger:         logger,
	}
	if redisStore != nil {
		opts.Relay = redisStore
		err := redisStore.SubscribeUpdates(ctx, cfg.InstanceID, logger, func(sessionID string, payload []byte) {
			h.Broadcast(sessionID, payload)
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("relay subscription failed")
		}
	}
	svc := ledger.New(opts)

	wsServer := hub.NewServer(h, svc, listing, hub.ServerConfig{
		HandshakeTimeout: cfg.HandshakeTimeout,
		InboundRate:      cfg.InboundMessageRate,
	}, logger)

	// Create router
	router := api.NewRouter(logger, api.Options{
		Handler: handlers.NewHandler(handlers.Deps{
			Ledger:  svc,
			Hub:     h,
			Listing: listing,
			Cache:   queryCache,
			Archive: archive,
			Redis:   redisStore,
			Logger:  logger,
		}),
		WebSocket:   wsServer,
		RedisClient: redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting nugget ledger server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Stop the relay and disconnect every live subscriber first.
	stop()
	h.Shutdown()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// restore hydrates the in-memory ledger from the archive. Failures are
// logged; the service starts with whatever could be loaded.
func restore(ctx context.Context, logger zerolog.Logger, archive store.Archive, strands *store.StrandStore, auditLog *audit.Log) {
	codons, err := archive.LoadCodons(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load archived nuggets")
	}
	restored := 0
	for _, c := range codons {
		if err := strands.Restore(c); err != nil {
			logger.Warn().Err(err).Str("nugget_id", c.ID).Msg("skipping archived nugget")
			continue
		}
		restored++
	}

	entries, err := archive.LoadAudit(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load archived audit log")
	}
	n := auditLog.Restore(entries)

	logger.Info().
		Int("nuggets", restored).
		Int("audit_entries", n).
		Msg("ledger restored from archive")
}
