package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/tracing"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-analyzer/storage/redis")

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// RedisSessionRegistry 基于 ZSET 的会话登记表，可在多个实例间共享
type RedisSessionRegistry struct {
	redis *Redis
	key   string
}

var _ SessionRegistry = (*RedisSessionRegistry)(nil)

// NewRedisSessionRegistry 创建 Redis 会话登记表
func NewRedisSessionRegistry(r *Redis) *RedisSessionRegistry {
	return &RedisSessionRegistry{redis: r, key: constants.KeyLiveSessions}
}

func (s *RedisSessionRegistry) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := redisTracer.Start(ctx, "SessionRegistry."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", op),
		attribute.String("db.redis.key", tracing.SafeRedisKey(s.key)),
	)
	return ctx, span
}

// Register 使用 ZADD NX 登记会话，已存在时返回 ErrSessionExists
func (s *RedisSessionRegistry) Register(ctx context.Context, id string, createdAt time.Time) error {
	ctx, span := s.startSpan(ctx, "ZADDNX")
	defer span.End()

	added, err := s.redis.Client.ZAddNX(ctx, s.key, redis.Z{
		Score:  float64(createdAt.Unix()),
		Member: id,
	}).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("登记会话失败: %w", err)
	}
	if added == 0 {
		err := fmt.Errorf("%w: %s", ErrSessionExists, id)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Unregister 从登记表中移除会话
func (s *RedisSessionRegistry) Unregister(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "ZREM")
	defer span.End()

	if err := s.redis.Client.ZRem(ctx, s.key, id).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("注销会话失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Older 返回创建时间早于 cutoff 的会话ID，按创建时间升序
func (s *RedisSessionRegistry) Older(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, span := s.startSpan(ctx, "ZRANGEBYSCORE")
	defer span.End()

	ids, err := s.redis.Client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("查询过期会话失败: %w", err)
	}
	span.SetAttributes(attribute.Int("sessions.count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}
