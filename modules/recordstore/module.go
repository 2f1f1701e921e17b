package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Supported drivers.
const (
	DriverJetStream = "jetstream"
	DriverRedis     = "redis"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"
)

// Config selects and configures the backend.
type Config struct {
	Driver        string `env:"DRIVER" envDefault:"jetstream"`
	NATSURL       string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	BucketPrefix  string `env:"BUCKET_PREFIX" envDefault:"catalog"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"catalog:"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"catalog.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverJetStream,
		NATSURL:      "nats://127.0.0.1:4222",
		BucketPrefix: "catalog",
		RedisAddr:    "localhost:6379",
		RedisPrefix:  "catalog:",
		SQLitePath:   "catalog.db",
	}
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverJetStream:
		return DialKVBackend(cfg.NATSURL, cfg.BucketPrefix)
	case DriverRedis:
		return DialRedisBackend(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case DriverSQLite:
		return OpenSQLiteBackend(cfg.SQLitePath)
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return OpenPostgresBackend(ctx, cfg.PostgresDSN)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Module opens the record store backend for the application.
type Module struct {
	config  Config
	backend Backend
	logger  types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the record store module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		config: cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "recordstore"
}

// Start opens the configured backend.
func (m *Module) Start(ctx context.Context) error {
	backend, err := Open(ctx, m.config)
	if err != nil {
		return fmt.Errorf("failed to open %s record store: %w", m.config.Driver, err)
	}
	m.backend = backend
	m.logger.Info("Record store opened", "driver", m.config.Driver)
	return nil
}

// Stop closes the backend.
func (m *Module) Stop(_ context.Context) error {
	if m.backend == nil {
		return nil
	}
	if err := m.backend.Close(); err != nil {
		m.logger.Warn("Failed to close record store", "error", err)
	}
	m.backend = nil
	m.logger.Info("Record store closed")
	return nil
}

// Health pings the backend.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.backend == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "record store not open",
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.backend.Ping(pingCtx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("record store ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.config.Driver,
		},
	}
}

// Backend returns the open backend, or nil before Start.
func (m *Module) Backend() Backend {
	return m.backend
}
