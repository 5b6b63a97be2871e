package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
)

const (
	violationThreshold = 10
	violationWindow    = time.Hour
	blockDuration      = 24 * time.Hour
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block callers after repeated violations
}

// decision is the outcome of counting one request against a limit.
type decision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// counter counts requests per key and remembers blocked IPs.
type counter interface {
	take(ctx context.Context, key string, limit RateLimit) decision
	violation(ctx context.Context, ip string) int64
	block(ctx context.Context, ip, reason string, d time.Duration)
	blocked(ctx context.Context, ip string) bool
}

// RateLimiter enforces per-credential and per-IP limits. With a Redis client
// the window is shared by every instance; without one each instance keeps
// its own token buckets.
type RateLimiter struct {
	counter          counter
	limits           map[string]RateLimit
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// DefaultLimits returns the per-route limits, keyed by "METHOD /path-prefix".
func DefaultLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"POST /nugget/create":   {120, time.Minute, credentialKey},
		"POST /nugget/outcome":  {120, time.Minute, credentialKey},
		"PATCH /nugget/":        {120, time.Minute, credentialKey},
		"POST /nugget/query":    {300, time.Minute, credentialKey},
		"GET /nugget/":          {300, time.Minute, credentialKey},
		"GET /session/":         {300, time.Minute, credentialKey},
		"GET /audit/compliance": {30, time.Minute, credentialKey},
		"GET /shared":           {60, time.Minute, credentialKey},
		"GET /ws":               {30, time.Minute, ipKey},
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	var c counter = newLocalCounter()
	if client != nil {
		c = &redisCounter{client: client}
	}

	rl := &RateLimiter{
		counter:          c,
		limits:           DefaultLimits(),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			rl.whitelistIPs[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		rl.whitelist = append(rl.whitelist, ipNet)
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// WithLimits replaces the route limits.
func (rl *RateLimiter) WithLimits(limits map[string]RateLimit) *RateLimiter {
	rl.limits = limits
	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "nuggets:ratelimit:ip:" + RealIP(r)
}

// credentialKey keys on a hash of the bearer token, falling back to the IP
// for anonymous requests.
func credentialKey(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ipKey(r)
	}
	sum := sha256.Sum256([]byte(authz))
	return "nuggets:ratelimit:cred:" + hex.EncodeToString(sum[:8])
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if rl.counter.blocked(ctx, ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_block").Inc()
			jsonError(w, http.StatusForbidden, CodeBlocked, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		d := rl.counter.take(ctx, key, *limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

		if !d.allowed {
			retry := int(time.Until(d.resetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			rl.trackViolation(ctx, ip)
			jsonError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the limit whose pattern is the longest prefix of the
// request's method and path.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path

	var best *RateLimit
	bestLen := 0
	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) && len(pattern) > bestLen {
			l := limit
			best, bestLen = &l, len(pattern)
		}
	}
	return best
}

// trackViolation blocks an IP once it has exceeded a limit too often.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	count := rl.counter.violation(ctx, ip)
	if count < violationThreshold {
		return
	}
	rl.counter.block(ctx, ip, "repeated rate limit violations", blockDuration)
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Msg("IP auto-blocked for repeated violations")
}

// redisCounter keeps a sliding window per key in a Redis sorted set.
type redisCounter struct {
	client *redis.Client
}

func (c *redisCounter) take(ctx context.Context, key string, limit RateLimit) decision {
	now := time.Now()
	start := now.Add(-limit.Window)

	var card *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(start.UnixMilli(), 10))
		card = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: strconv.FormatInt(now.UnixNano(), 10),
		})
		pipe.Expire(ctx, key, limit.Window*2)
		return nil
	})
	if err != nil {
		// Fail open when Redis is unreachable.
		return decision{allowed: true, remaining: limit.Requests, resetAt: now.Add(limit.Window)}
	}

	count := int(card.Val())
	remaining := limit.Requests - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return decision{
		allowed:   count < limit.Requests,
		remaining: remaining,
		resetAt:   now.Add(limit.Window),
	}
}

func (c *redisCounter) violation(ctx context.Context, ip string) int64 {
	key := "nuggets:violations:ip:" + ip
	count, _ := c.client.Incr(ctx, key).Result()
	c.client.Expire(ctx, key, violationWindow)
	return count
}

func (c *redisCounter) block(ctx context.Context, ip, reason string, d time.Duration) {
	c.client.Set(ctx, "nuggets:blocked:ip:"+ip, reason, d)
}

func (c *redisCounter) blocked(ctx context.Context, ip string) bool {
	n, _ := c.client.Exists(ctx, "nuggets:blocked:ip:"+ip).Result()
	return n > 0
}

// localCounter keeps a token bucket per key in process memory. Idle buckets
// expire after an hour.
type localCounter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	strikes *cache.Cache
	blocks  *cache.Cache
}

func newLocalCounter() *localCounter {
	return &localCounter{
		buckets: cache.New(violationWindow, 10*time.Minute),
		strikes: cache.New(violationWindow, 10*time.Minute),
		blocks:  cache.New(blockDuration, 10*time.Minute),
	}
}

func (c *localCounter) take(_ context.Context, key string, limit RateLimit) decision {
	c.mu.Lock()
	var lim *rate.Limiter
	if v, ok := c.buckets.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(limit.Window/time.Duration(limit.Requests)), limit.Requests)
	}
	c.buckets.SetDefault(key, lim)
	c.mu.Unlock()

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	tokens := int(lim.TokensAt(now))
	if tokens < 0 {
		tokens = 0
	}

	resetAt := now.Add(limit.Window)
	if !allowed {
		resetAt = now.Add(time.Duration(float64(time.Second) / float64(lim.Limit())))
	}
	return decision{allowed: allowed, remaining: tokens, resetAt: resetAt}
}

func (c *localCounter) violation(_ context.Context, ip string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.strikes.Add(ip, int64(1), cache.DefaultExpiration); err == nil {
		return 1
	}
	n, _ := c.strikes.IncrementInt64(ip, 1)
	return n
}

func (c *localCounter) block(_ context.Context, ip, reason string, d time.Duration) {
	c.blocks.Set(ip, reason, d)
}

func (c *localCounter) blocked(_ context.Context, ip string) bool {
	_, ok := c.blocks.Get(ip)
	return ok
}
