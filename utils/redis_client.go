package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/communityconnect/server/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
	redisMu     sync.RWMutex
)

// GetRedis returns a singleton Redis client based on loaded config, or nil when
// redis is disabled. Callers fall back to in-process state on nil.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		if cfg.RedisDisabled {
			return
		}
		rc := redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			Sugar.Warnf("redis ping failed, keeping client for later retries: %v", err)
		}
		redisMu.Lock()
		redisClient = rc
		redisMu.Unlock()
	})
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisClient
}

// SetRedis installs a client (nil disables redis). Used by tests and tools.
func SetRedis(rc *redis.Client) {
	redisOnce.Do(func() {})
	redisMu.Lock()
	redisClient = rc
	redisMu.Unlock()
}
