package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const throttlePrefix = "commitdash:rl:write:"

// WriteThrottle limits chain writes per client IP per minute using Redis.
// It is a no-op without Redis or with a non-positive limit, and fails open
// on cache errors.
func WriteThrottle(cache *redis.Client, maxPerMin int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		key := throttlePrefix + c.IP()
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many chain writes, try again in a minute")
		}
		return c.Next()
	}
}
