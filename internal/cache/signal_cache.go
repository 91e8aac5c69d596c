// Package cache provides a short-lived Redis cache for computed signals, so
// repeated analysis of an unchanged series does not recompute the pipeline.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/models"
)

// Stats tracks cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// SignalCache stores signals in Redis keyed by a series/config fingerprint.
// All failures degrade to a miss; the pipeline never depends on the cache.
type SignalCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSignalCache creates a signal cache with the given TTL.
func NewSignalCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SignalCache {
	return &SignalCache{
		redis:  client,
		ttl:    ttl,
		prefix: "signal_cache:",
		logger: logger,
	}
}

// Get returns the cached signal for the fingerprint, if present.
func (c *SignalCache) Get(ctx context.Context, key string) (*models.Signal, bool) {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("signal cache read failed")
		}
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}

	var sig models.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		c.logger.WithError(err).Warn("signal cache entry corrupt, ignoring")
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}

	c.count(func(s *Stats) { s.Hits++ })
	return &sig, true
}

// Set stores the signal under the fingerprint with the cache TTL.
func (c *SignalCache) Set(ctx context.Context, key string, sig *models.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		c.logger.WithError(err).Warn("signal cache serialization failed")
		return
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("signal cache write failed")
		return
	}
	c.count(func(s *Stats) { s.Sets++ })
}

// GetStats returns a copy of the current counters.
func (c *SignalCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Clear removes every cached signal.
func (c *SignalCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan signal cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear signal cache: %w", err)
	}
	c.logger.WithField("entries", len(keys)).Info("signal cache cleared")
	return nil
}

func (c *SignalCache) count(update func(*Stats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
