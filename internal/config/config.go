package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

// devJWTSecret is only accepted outside production.
const devJWTSecret = "dummy_jwt_secret_123"

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	InstanceID  string
	RedisURL    string
	DatabaseURL string
	SQLitePath  string

	// ArchiveSealKey, when set, encrypts nugget content in the archive.
	ArchiveSealKey string

	// Identity gate
	JWTSecret    string
	JWTPublicKey string // base64 Ed25519 key for EdDSA tokens
	JWTIssuer    string

	CacheTTL           time.Duration
	HandshakeTimeout   time.Duration
	ArchiveTimeout     time.Duration
	MaxSessionClients  int
	InboundMessageRate float64 // frames per second per connection

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		InstanceID:         getEnv("INSTANCE_ID", crypto.NewRequestID()),
		RedisURL:           os.Getenv("REDIS_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		ArchiveSealKey:     os.Getenv("ARCHIVE_SEAL_KEY"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTPublicKey:       os.Getenv("JWT_PUBLIC_KEY"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		CacheTTL:           getDuration("CACHE_TTL", time.Hour),
		HandshakeTimeout:   getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		ArchiveTimeout:     getDuration("ARCHIVE_TIMEOUT", 2*time.Second),
		MaxSessionClients:  getInt("WS_MAX_SESSION_CLIENTS", 100),
		InboundMessageRate: float64(getInt("WS_INBOUND_RATE", 5)),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require a real signing secret and redis
	if cfg.Env == "production" {
		if cfg.JWTSecret == "" && cfg.JWTPublicKey == "" {
			panic("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	} else if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
