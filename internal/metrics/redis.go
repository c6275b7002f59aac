package metrics

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const countersKey = "webhook:metrics:counters"

// RedisSink keeps counters in a Redis hash so snapshots survive process
// restarts and aggregate across instances. Increments fail open: a Redis
// outage must never fail an ingestion request.
type RedisSink struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisSink(client *redis.Client, logger *slog.Logger) *RedisSink {
	return &RedisSink{client: client, logger: logger}
}

func (s *RedisSink) Incr(ctx context.Context, name string, labels Labels) {
	if err := s.client.HIncrBy(ctx, countersKey, Key(name, labels), 1).Err(); err != nil {
		s.logger.Error("metrics increment failed", "metric", name, "error", err)
	}
}

// Snapshot returns all counters currently held in Redis.
func (s *RedisSink) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, countersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
