package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles queue entry per caller with a fixed window counter in
// Redis, so every instance behind the load balancer shares one budget.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
	}
}

// QueueRateLimit limits requests per member, falling back to the client IP for
// anonymous calls.
func (r *RateLimiter) QueueRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := c.Request().Header.Get("X-Member-Id")
			if caller == "" {
				caller = c.RealIP()
			}
			key := fmt.Sprintf("ratelimit:queue:%s", caller)

			count, err := r.redis.Incr(c.Request().Context(), key).Result()
			if err != nil {
				// Redis trouble should not block traffic.
				return next(c)
			}
			if count == 1 {
				r.redis.Expire(c.Request().Context(), key, r.window)
			}
			if count > r.limit {
				return c.JSON(429, map[string]string{
					"error": "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}

// AntiBotMiddleware rejects obvious scraper user agents before they reach the
// waiting room.
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userAgent := c.Request().Header.Get("User-Agent")
			if isSuspiciousUserAgent(userAgent) {
				return c.JSON(403, map[string]string{
					"error": "Access denied",
				})
			}
			return next(c)
		}
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
