package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"reclaim/common"
	"reclaim/config"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a redis-backed limiter when REDIS_ADDR is configured so that
// several instances share counters; otherwise an in-process one.
func New(cfg config.RateLimitConfig, redisCfg config.RedisConfig) Limiter {
	if redisCfg.Addr == "" {
		return NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	log.Info().Str("addr", redisCfg.Addr).Msg("rate limiter using redis")
	return NewRedisLimiter(client, int64(cfg.RequestsPerMinute)+int64(cfg.Burst), time.Minute)
}

// MemoryLimiter keeps one token bucket per key in process.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewMemoryLimiter(perMinute float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perMinute / 60),
		burst:    burst,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	limiter, ok := m.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = limiter
	}
	m.mu.Unlock()

	return limiter.Allow(), nil
}

// Cleanup drops limiters whose bucket has refilled.
func (m *MemoryLimiter) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, limiter := range m.limiters {
		if limiter.Tokens() >= float64(m.burst) {
			delete(m.limiters, key)
		}
	}
}

// RedisLimiter counts requests in fixed windows.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().Unix() / int64(r.window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

// Middleware limits requests per client IP within scope. Limiter errors
// let the request through.
func Middleware(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, common.RateLimited())
			return
		}
		c.Next()
	}
}

// StartCleanup prunes idle in-memory limiters until ctx is done.
func StartCleanup(ctx context.Context, limiter Limiter, every time.Duration) {
	mem, ok := limiter.(*MemoryLimiter)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mem.Cleanup()
			}
		}
	}()
}
