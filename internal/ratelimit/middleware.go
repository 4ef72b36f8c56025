package ratelimit

import (
	"github.com/gofiber/fiber/v2"
)

// Middleware rejects limited requests with 429. onLimited, when set, is
// called for every rejection.
func Middleware(limiter Limiter, onLimited func()) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := limiter.Allow(c)
		if err != nil {
			return err
		}

		for header, value := range result.LimitHeaders {
			c.Set(header, value)
		}

		if result.Limited {
			if onLimited != nil {
				onLimited()
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"detail": ErrRateLimitExceeded.Message})
		}

		return c.Next()
	}
}
