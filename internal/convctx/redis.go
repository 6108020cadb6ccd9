package convctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// RedisBackend stores contexts as JSON strings with a TTL.
type RedisBackend struct {
	client *redis.Client
	tracer trace.Tracer
}

// NewRedisBackend panics on a nil client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	if client == nil {
		panic("convctx: redis client cannot be nil")
	}
	return &RedisBackend{client: client, tracer: otel.Tracer("clinic-concierge/convctx")}
}

func (b *RedisBackend) Load(ctx context.Context, key string) (*Context, bool, error) {
	ctx, span := b.tracer.Start(ctx, "convctx.load")
	defer span.End()

	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("convctx: redis get: %w", err)
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("convctx: decode: %w", err)
	}
	return &c, true, nil
}

func (b *RedisBackend) Save(ctx context.Context, key string, c *Context, ttl time.Duration) error {
	ctx, span := b.tracer.Start(ctx, "convctx.save")
	defer span.End()

	data, err := json.Marshal(c)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("convctx: encode: %w", err)
	}
	if err := b.client.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("convctx: redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("convctx: redis del: %w", err)
	}
	return nil
}

// SelectBackend prefers Redis and falls back to memory when the client is nil
// or does not answer a ping.
func SelectBackend(ctx context.Context, client *redis.Client, logger *logging.Logger) Backend {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		logger.Warn("no redis configured, using in-memory conversation context")
		return NewMemoryBackend()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory conversation context", "error", err)
		return NewMemoryBackend()
	}
	return NewRedisBackend(client)
}
