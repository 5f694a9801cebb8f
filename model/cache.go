package model

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/logger"
)

// read-mostly caches in front of the record store; redis when configured so
// multiple replicas share hot values, in-process otherwise
var (
	memoryCache = gocache.New(time.Minute, 5*time.Minute)
	redisClient *redis.Client
)

// InitCache connects redis when a connection string is configured. The
// in-process cache keeps working either way.
func InitCache(ctx context.Context) error {
	if config.RedisConnString == "" {
		return nil
	}
	opt, err := redis.ParseURL(config.RedisConnString)
	if err != nil {
		return errors.Wrap(err, "parse redis conn string")
	}
	redisClient = redis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	logger.Logger.Info("redis cache enabled")
	return nil
}

// CacheGet returns a cached value and whether it was present.
func CacheGet(ctx context.Context, key string) (string, bool) {
	if redisClient != nil {
		val, err := redisClient.Get(ctx, key).Result()
		if err == nil {
			return val, true
		}
		if !errors.Is(err, redis.Nil) {
			logger.Logger.Warn("redis get", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if val, ok := memoryCache.Get(key); ok {
		return val.(string), true
	}
	return "", false
}

// CacheSet stores a value with a TTL.
func CacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if redisClient != nil {
		if err := redisClient.Set(ctx, key, value, ttl).Err(); err != nil {
			logger.Logger.Warn("redis set", zap.String("key", key), zap.Error(err))
		}
		return
	}
	memoryCache.Set(key, value, ttl)
}

// CacheDelete drops a key, for invalidation after writes.
func CacheDelete(ctx context.Context, key string) {
	if redisClient != nil {
		if err := redisClient.Del(ctx, key).Err(); err != nil {
			logger.Logger.Warn("redis del", zap.String("key", key), zap.Error(err))
		}
		return
	}
	memoryCache.Delete(key)
}
