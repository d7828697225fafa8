package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/response"
)

// LoginRateLimiter is a fixed-window per-IP limiter backed by Redis, so the
// window survives process restarts and is shared across replicas.
type LoginRateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	log    zerolog.Logger
}

// NewLoginRateLimiter creates a limiter allowing limit requests per window.
func NewLoginRateLimiter(rdb *redis.Client, limit int64, window time.Duration, log zerolog.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		log:    log.With().Str("component", "ratelimit").Logger(),
	}
}

// Middleware returns a Gin middleware rate-limiting requests by client IP.
// Redis unavailability fails open: login still works without the limiter.
func (rl *LoginRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := config.CacheKey.LoginRateKey(c.ClientIP())

		count, err := rl.rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			rl.log.Warn().Err(err).Msg("rate limit counter unavailable")
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.rdb.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
				rl.log.Warn().Err(err).Msg("rate limit expiry set failed")
			}
		}

		if count > rl.limit {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
