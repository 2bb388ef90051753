package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/chatwidget/internal/domain"
)

// DefaultStream is the Redis stream transcript entries are published to.
const DefaultStream = "chatwidget:transcript"

// DefaultStreamMaxLen is the approximate number of entries kept in the stream.
const DefaultStreamMaxLen = 100000

// RedisStream publishes transcript entries to a Redis stream so analytics
// consumers can read them with XREAD or a consumer group.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream connects to addr and verifies the server is reachable.
func NewRedisStream(ctx context.Context, addr, stream string, maxLen int64) (*RedisStream, error) {
	if stream == "" {
		stream = DefaultStream
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}, nil
}

// Append adds the entry to the stream, trimming it approximately to maxLen.
func (r *RedisStream) Append(ctx context.Context, entry domain.TranscriptEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: streamValues(entry),
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStream) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func streamValues(entry domain.TranscriptEntry) map[string]interface{} {
	return map[string]interface{}{
		"session_id": entry.SessionID,
		"kind":       string(entry.Kind),
		"text":       entry.Text,
		"created_at": strconv.FormatInt(entry.CreatedAt.UnixMilli(), 10),
	}
}
