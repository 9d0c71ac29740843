package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PerformanceCache keeps dealer performance summaries in Redis. Summaries are
// expensive aggregates and tolerate short staleness.
type PerformanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPerformanceCache constructs a cache with the given TTL.
func NewPerformanceCache(client *redis.Client, ttl time.Duration) *PerformanceCache {
	return &PerformanceCache{client: client, ttl: ttl}
}

func performanceKey(dealerID, stationID string, rng DateRange) string {
	return fmt.Sprintf("sankofa:performance:%s:%s:%d:%d",
		dealerID, stationID, rng.Start.Unix(), rng.End.Unix())
}

// Get returns a cached summary if present.
func (c *PerformanceCache) Get(ctx context.Context, dealerID, stationID string, rng DateRange) (PerformanceSummary, bool) {
	data, err := c.client.Get(ctx, performanceKey(dealerID, stationID, rng)).Bytes()
	if err != nil {
		return PerformanceSummary{}, false
	}
	var summary PerformanceSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return PerformanceSummary{}, false
	}
	return summary, true
}

// Set stores a summary. Failures are swallowed; the cache is best effort.
func (c *PerformanceCache) Set(ctx context.Context, dealerID, stationID string, rng DateRange, summary PerformanceSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, performanceKey(dealerID, stationID, rng), data, c.ttl).Err()
}

// Invalidate drops every cached summary for a dealer, called after a
// settlement mutates the dealer's history.
func (c *PerformanceCache) Invalidate(ctx context.Context, dealerID string) {
	var cursor uint64
	pattern := fmt.Sprintf("sankofa:performance:%s:*", dealerID)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return
		}
		if len(keys) > 0 {
			_ = c.client.Del(ctx, keys...).Err()
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
