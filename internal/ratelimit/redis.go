package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/egplabs/gateway/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient builds the shared cache client, or returns nil when no
// address is configured so every limiter runs process-local. Timeouts stay
// short; these calls sit on every authenticated request's critical path.
func NewRedisClient(cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Warn("redis not configured, rate limiting is process-local only")
		return nil
	}

	timeout := time.Duration(cfg.RedisTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     strings.TrimSpace(cfg.RedisPassword),
		DB:           cfg.RedisDB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Keep the client; the facades fall back and re-probe on their own.
		log.Warn("redis unreachable at startup", zap.String("addr", addr), zap.Error(err))
	}

	return client
}
