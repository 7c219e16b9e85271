package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/interfaces"
)

const defaultKeyPrefix = "userbio:ratelimit:"

// RedisLimiter is a sliding-window limiter shared by every instance using the same Redis.
// Redis failures allow the request.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	logger interfaces.Logger
	now    func() time.Time
}

// NewRedisLimiter wraps an existing client
func NewRedisLimiter(client redis.UniversalClient, cfg Config, logger interfaces.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg.normalized(),
		prefix: defaultKeyPrefix,
		logger: logger,
		now:    time.Now,
	}
}

// NewRedisLimiterFromURL parses redisURL, connects and verifies the connection
func NewRedisLimiterFromURL(ctx context.Context, redisURL string, cfg Config, logger interfaces.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperrors.NewConfigInvalidError("failed to parse Redis URL", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewConnectionFailedError("redis", err)
	}

	logger.Info("Redis rate limiter connected", map[string]interface{}{"addr": opts.Addr, "db": opts.DB})
	return NewRedisLimiter(client, cfg, logger), nil
}

// Allow records the request in the key's window and reports whether it fits
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := r.now()
	redisKey := r.prefix + key
	windowStart := now.Add(-r.cfg.Window)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, r.cfg.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("Redis rate limit check failed, allowing request", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return Result{Allowed: true, Limit: r.cfg.Requests, Remaining: r.cfg.Requests - 1, ResetAt: now.Add(r.cfg.Window)}, nil
	}

	count := int(countCmd.Val())
	resetAt := now.Add(r.cfg.Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(r.cfg.Window)
	}

	if count >= r.cfg.Requests {
		// Denied requests do not occupy the window.
		if err := r.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			r.logger.Warn("Failed to release denied rate limit slot", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return Result{Allowed: false, Limit: r.cfg.Requests, Remaining: 0, ResetAt: resetAt}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     r.cfg.Requests,
		Remaining: r.cfg.Requests - count - 1,
		ResetAt:   resetAt,
	}, nil
}

// Name identifies the dependency in health output
func (r *RedisLimiter) Name() string {
	return "redis"
}

// Check pings Redis
func (r *RedisLimiter) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the client
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

var _ Limiter = (*RedisLimiter)(nil)
var _ Limiter = (*MemoryLimiter)(nil)
var _ interfaces.HealthChecker = (*RedisLimiter)(nil)
