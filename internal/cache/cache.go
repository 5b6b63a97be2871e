// Package cache memoizes query results in a best-effort key/value backend.
package cache

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// DefaultTTL is how long a query result stays cached.
const DefaultTTL = time.Hour

const keyPrefix = "nuggets:"

// Backend is the key/value collaborator behind the cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Key returns the canonical cache key for a filter set. Empty filters are
// dropped and the rest are encoded in sorted key order, so two filter sets
// with the same pairs always share a key.
func Key(f store.Filters) string {
	v := url.Values{}
	add := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	add("sessionId", f.SessionID)
	add("riskLevel", f.RiskLevel)
	add("agent", f.Agent)
	add("strategy", f.Strategy)
	add("temporalCluster", f.TemporalCluster)
	return keyPrefix + v.Encode()
}

// QueryCache sits in front of store scans. Backend failures are logged and
// treated as misses; a circuit breaker stops calling a backend that keeps
// failing until it has had time to recover.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// New creates a query cache over the backend. A nil backend yields a cache
// that always misses.
func New(backend Backend, ttl time.Duration, logger zerolog.Logger) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger = logger.With().Str("component", "query_cache").Logger()

	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "query-cache",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("cache circuit breaker state changed")
			},
		}),
	}
}

// Enabled reports whether a backend is configured.
func (c *QueryCache) Enabled() bool {
	return c != nil && c.backend != nil
}

// TTL returns the configured entry lifetime.
func (c *QueryCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached payload for the filters, if any.
func (c *QueryCache) Get(ctx context.Context, f store.Filters) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	key := Key(f)
	res, err := c.breaker.Execute(func() (interface{}, error) {
		data, found, err := c.backend.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return data, nil
	})
	if err != nil {
		c.swallow("get", key, err)
		return nil, false
	}

	data, _ := res.([]byte)
	return data, data != nil
}

// Put stores a payload for the filters. Failures are swallowed.
func (c *QueryCache) Put(ctx context.Context, f store.Filters, payload []byte) {
	if !c.Enabled() {
		return
	}

	key := Key(f)
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.backend.Set(ctx, key, payload, c.ttl)
	})
	if err != nil {
		c.swallow("put", key, err)
	}
}

// Ping checks the backend.
func (c *QueryCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("not configured")
	}
	return c.backend.Ping(ctx)
}

func (c *QueryCache) swallow(op, key string, err error) {
	metrics.CacheErrors.WithLabelValues(op).Inc()
	ev := c.logger.Warn()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		ev = c.logger.Debug()
	}
	ev.Err(err).Str("op", op).Str("key", key).Msg("query cache unavailable, falling back to store")
}
