package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window request counter kept in Redis. The first
// hit in a window sets the key's expiry; hits past Limit get 429 until the
// key expires.
type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
	Log    *zap.SugaredLogger
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window, Log: log}
}

func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		redisKey := fmt.Sprintf("%s:%s", r.Prefix, keyFunc(c))

		count, err := r.Redis.Incr(ctx, redisKey).Result()
		if err != nil {
			r.Log.Errorw("rate limiter error", "key", redisKey, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status":  http.StatusInternalServerError,
				"message": "rate limiter error",
			})
			return
		}
		if count == 1 {
			if err := r.Redis.Expire(ctx, redisKey, r.Window).Err(); err != nil {
				// A counter without a TTL would lock the client out for good.
				r.Log.Errorw("rate limiter expire failed", "key", redisKey, "error", err)
				r.Redis.Del(ctx, redisKey)
			}
		}
		if count > int64(r.Limit) {
			r.Log.Warnw("rate limit exceeded", "key", redisKey, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// ByClientIP limits each client address separately per route.
func (r *RateLimiter) ByClientIP() gin.HandlerFunc {
	return r.MiddlewareByKey(func(c *gin.Context) string {
		return c.FullPath() + ":" + c.ClientIP()
	})
}
