package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Backend for single-instance deployments and tests.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates an in-process backend that sweeps expired entries on
// the given interval.
func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{cache: gocache.New(DefaultTTL, cleanupInterval)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Ping implements Backend.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Len returns the number of cached entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}
