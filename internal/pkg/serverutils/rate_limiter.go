package serverutils

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitMiddleware is a fixed-window per-IP limiter for the chat and
// upload routes. Counters reset each window; stale entries are purged
// lazily on access so there is no background goroutine to manage.
func RateLimitMiddleware(maxRequests int, window time.Duration) fiber.Handler {
	type bucket struct {
		count   int
		resetAt time.Time
	}

	var mu sync.Mutex
	buckets := make(map[string]*bucket)

	return func(ctx *fiber.Ctx) error {
		ip := ctx.IP()
		now := time.Now()

		mu.Lock()
		b, ok := buckets[ip]
		if !ok || now.After(b.resetAt) {
			b = &bucket{resetAt: now.Add(window)}
			buckets[ip] = b
		}
		b.count++
		over := b.count > maxRequests
		retryAfter := time.Until(b.resetAt)
		mu.Unlock()

		if over {
			ctx.Set("Retry-After", retryAfter.Round(time.Second).String())
			return ctx.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse(fiber.StatusTooManyRequests, "Too many requests"))
		}
		return ctx.Next()
	}
}
