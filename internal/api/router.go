package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sendmedown/bio-quantum-platform/internal/api/middleware"
	"github.com/sendmedown/bio-quantum-platform/internal/handlers"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
)

// Options configures the router.
type Options struct {
	Handler     *handlers.Handler
	WebSocket   *hub.Server
	RedisClient *redis.Client // nil disables HTTP rate limiting
	RateLimit   middleware.RateLimiterConfig
	MaxBodySize int64
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 64 * 1024
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodySize))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(opts.RedisClient, logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := opts.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// The websocket handshake authorizes on its own.
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket.HandleWebSocket)
	}

	// Ledger routes; the ledger gate authorizes each call.
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerCredential)

		r.Post("/nugget/create", h.CreateNugget)
		r.Post("/nugget/query", h.QueryNuggets)
		r.Post("/nugget/outcome", h.SetOutcome)
		r.Patch("/nugget/{id}/outcome", h.PatchOutcome)
		r.Get("/nugget/{id}/timeline", h.Timeline)
		r.Get("/nugget/{id}/relationships", h.Relationships)
		r.Get("/session/{id}", h.GetSession)
		r.Get("/audit/compliance", h.Compliance)
		r.Get("/shared", h.Shared)
	})

	return r
}
