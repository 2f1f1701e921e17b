package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis/v3"
)

// RateLimitConfig limits requests per client IP on the /api routes.
type RateLimitConfig struct {
	// Max requests per window; 0 disables limiting.
	Max    int           `env:"MAX" envDefault:"0"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
	// RedisURL shares counters across instances, e.g. redis://localhost:6379/0.
	// Empty keeps them in process memory.
	RedisURL string `env:"REDIS_URL"`
}

// Enabled reports whether requests are limited at all.
func (c RateLimitConfig) Enabled() bool {
	return c.Max > 0
}

// newLimitStorage opens the shared counter storage, or returns nil for
// in-memory counters. The redis storage panics when it cannot connect, so
// that is turned into an error here.
func newLimitStorage(cfg RateLimitConfig) (storage *redis.Storage, err error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("failed to connect rate limit storage: %v", r)
		}
	}()
	return redis.New(redis.Config{URL: cfg.RedisURL}), nil
}

func rateLimiter(cfg RateLimitConfig, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("rate limit exceeded: %d requests per %s", cfg.Max, cfg.Window),
				"code":  fiber.StatusTooManyRequests,
			})
		},
	})
}
