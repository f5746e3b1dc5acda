package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/namespace"
)

const (
	loginRateLimitPrefix = "tontine:rl:login:"
	loginWindow          = time.Minute
)

// LoginRateLimit limits login attempts per phone number (or client IP when
// the body carries none) using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			CountryCode string `json:"country_code"`
			Phone       string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := c.IP()
		if ns, ok := namespace.Resolve(req.CountryCode, req.Phone); ok {
			subject = ns.String()
		}
		key := loginRateLimitPrefix + subject
		ctx := c.UserContext()
		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetNX(ctx, key, 0, loginWindow)
			incr = pipe.Incr(ctx, key)
			ttl = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		// A counter without expiry would lock the subject out for good.
		if ttl.Val() < 0 {
			if err := cache.Expire(ctx, key, loginWindow).Err(); err != nil {
				return c.Next()
			}
		}
		cnt := incr.Val()
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
