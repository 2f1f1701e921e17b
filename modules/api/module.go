// Package api is the HTTP and WebSocket front end over the product and order
// controllers.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"

	ordermod "github.com/example/catalog-sync/modules/order"
	productmod "github.com/example/catalog-sync/modules/product"
)

// Config holds API configuration.
type Config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	ActionTimeout time.Duration `env:"ACTION_TIMEOUT" envDefault:"30s"`
	BodyLimit     int           `env:"BODY_LIMIT" envDefault:"12582912"`
	AllowOrigins  string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// DefaultConfig returns the default API configuration.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		ActionTimeout: 30 * time.Second,
		BodyLimit:     12 << 20,
		AllowOrigins:  "*",
		RateLimit:     RateLimitConfig{Window: time.Minute},
	}
}

// ProductSource supplies the product controller.
type ProductSource interface {
	Controller() *productmod.Controller
}

// OrderSource supplies the order controller.
type OrderSource interface {
	Controller() *ordermod.Controller
}

// Module serves the HTTP API.
type Module struct {
	config   Config
	products ProductSource
	orders   OrderSource
	app      *fiber.App
	limits   *redis.Storage
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)

// NewModule creates the API module.
func NewModule(cfg Config, products ProductSource, orders OrderSource, logger types.Logger) *Module {
	return &Module{
		config:   cfg,
		products: products,
		orders:   orders,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	pc := m.products.Controller()
	oc := m.orders.Controller()
	if pc == nil || oc == nil {
		return fmt.Errorf("controllers not available")
	}

	var storage fiber.Storage
	if m.config.RateLimit.Enabled() {
		limits, err := newLimitStorage(m.config.RateLimit)
		if err != nil {
			return err
		}
		if limits != nil {
			m.limits = limits
			storage = limits
		}
	}

	m.app = NewApp(m.config, NewHandlers(pc, oc, m.config.ActionTimeout), m.logger, storage)

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.config.Addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP API started", "addr", m.config.Addr)
	return nil
}

// Stop shuts the server down.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	if m.limits != nil {
		if err := m.limits.Close(); err != nil {
			m.logger.Warn("Failed to close rate limit storage", "error", err)
		}
		m.limits = nil
	}
	m.logger.Info("HTTP API stopped")
	return nil
}

// NewApp creates the Fiber app with all routes registered. limits holds the
// rate limit counters when cfg.RateLimit is enabled; nil keeps them in memory.
func NewApp(cfg Config, h *Handlers, log types.Logger, limits fiber.Storage) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Catalog Sync",
		DisableStartupMessage: true,
		// Params and form values reach the controllers and the projections,
		// which outlive the request.
		Immutable:             true,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", h.HealthCheck)

	api := app.Group("/api/v1")
	if cfg.RateLimit.Enabled() {
		api.Use(rateLimiter(cfg.RateLimit, limits))
	}

	products := api.Group("/products")
	products.Get("/", h.ListProducts)
	products.Post("/", h.CreateProduct)
	products.Post("/refresh", h.RefreshProducts)
	products.Get("/:id", h.GetProduct)
	products.Put("/:id", h.UpdateProduct)
	products.Delete("/:id", h.DeleteProduct)

	orders := api.Group("/orders")
	orders.Get("/", h.ListOrders)
	orders.Post("/refresh", h.RefreshOrders)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/products", websocket.New(h.WatchProducts))
	app.Get("/ws/orders", websocket.New(h.WatchOrders))

	return app
}

func errorHandler(log types.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error":  message,
			"code":   code,
			"path":   c.Path(),
			"method": c.Method(),
		})
	}
}
