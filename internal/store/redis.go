package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
)

const relayPattern = "nuggets:session:*"

// RedisStore handles Redis operations: the query cache backend, the
// cross-instance session relay, and the client used for rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns a cached value. A missing key is reported as found=false
// with no error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, key).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.client.Set(ctx, key, value, ttl).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// sessionChannel returns the relay channel for a session.
func sessionChannel(sessionID string) string {
	return fmt.Sprintf("nuggets:session:%s", sessionID)
}

// relayEnvelope wraps a push payload so instances can skip their own messages.
type relayEnvelope struct {
	InstanceID string          `json:"instanceId"`
	SessionID  string          `json:"sessionId"`
	Payload    json.RawMessage `json:"payload"`
}

// PublishUpdate relays a push payload for a session to other instances.
func (s *RedisStore) PublishUpdate(ctx context.Context, instanceID, sessionID string, payload []byte) error {
	data, err := json.Marshal(relayEnvelope{
		InstanceID: instanceID,
		SessionID:  sessionID,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, sessionChannel(sessionID), data).Err()
}

// SubscribeUpdates delivers payloads published by other instances until ctx
// is cancelled.
func (s *RedisStore) SubscribeUpdates(ctx context.Context, instanceID string, logger zerolog.Logger, deliver func(sessionID string, payload []byte)) error {
	pubsub := s.client.PSubscribe(ctx, relayPattern)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed relay message")
					continue
				}
				// Skip messages from this instance (avoid double delivery)
				if env.InstanceID == instanceID {
					continue
				}
				if env.SessionID == "" {
					env.SessionID = strings.TrimPrefix(msg.Channel, "nuggets:session:")
				}
				deliver(env.SessionID, env.Payload)
			}
		}
	}()

	return nil
}
