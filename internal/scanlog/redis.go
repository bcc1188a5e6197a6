package scanlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// streamTTL keeps abandoned streams from lingering; any append refreshes it.
const streamTTL = 7 * 24 * time.Hour

// RedisSink stores each monitor's stream as a capped redis list, newest first.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

var _ Sink = (*RedisSink)(nil)

func key(monitorID uuid.UUID) string {
	return "scanlog:" + monitorID.String()
}

func (s *RedisSink) Append(ctx context.Context, monitorID uuid.UUID, message string) error {
	k := key(monitorID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, k, stamp(message))
	pipe.LTrim(ctx, k, 0, maxHistory-1)
	pipe.Expire(ctx, k, streamTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("scanlog append: %w", err)
	}
	return nil
}

func (s *RedisSink) Recent(ctx context.Context, monitorID uuid.UUID) ([]string, error) {
	lines, err := s.rdb.LRange(ctx, key(monitorID), 0, maxHistory-1).Result()
	if err != nil {
		return nil, fmt.Errorf("scanlog read: %w", err)
	}
	// Stored newest first; serve oldest first like a console.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
