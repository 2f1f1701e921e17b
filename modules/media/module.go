package media

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
)

// Config holds media configuration.
type Config struct {
	NATSURL       string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Bucket        string `env:"BUCKET" envDefault:"catalog-media"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8081"`
	HostAddr      string `env:"HOST_ADDR" envDefault:":8081"`
	MaxSize       int64  `env:"MAX_SIZE" envDefault:"10485760"`
}

// DefaultConfig returns the default media configuration.
func DefaultConfig() Config {
	return Config{
		NATSURL:       "nats://127.0.0.1:4222",
		Bucket:        "catalog-media",
		PublicBaseURL: "http://localhost:8081",
		HostAddr:      ":8081",
		MaxSize:       DefaultMaxSize,
	}
}

// Module owns the asset bucket, the uploader and the asset host.
type Module struct {
	config   Config
	conn     *nats.Conn
	store    *JetStreamObjectStore
	uploader *ObjectStoreUploader
	host     *Host
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the media module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		config: cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "media"
}

// Start connects to NATS, opens the bucket and starts the asset host.
func (m *Module) Start(ctx context.Context) error {
	conn, err := nats.Connect(m.config.NATSURL, nats.Name("catalog-sync media"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	store, err := NewJetStreamObjectStore(conn, m.config.Bucket)
	if err != nil {
		conn.Close()
		return err
	}
	if err := store.Init(ctx); err != nil {
		conn.Close()
		return err
	}

	host := NewHost(store, m.config.HostAddr, m.logger)
	if err := host.Start(); err != nil {
		conn.Close()
		return err
	}

	m.conn = conn
	m.store = store
	m.uploader = NewObjectStoreUploader(store, m.config.PublicBaseURL, m.config.MaxSize)
	m.host = host

	m.logger.Info("Media module started",
		"bucket", m.config.Bucket,
		"publicBaseURL", m.config.PublicBaseURL)
	return nil
}

// Stop shuts down the host and closes the connection.
func (m *Module) Stop(ctx context.Context) error {
	var err error
	if m.host != nil {
		err = m.host.Shutdown(ctx)
	}
	if m.conn != nil {
		m.conn.Close()
	}
	m.logger.Info("Media module stopped")
	return err
}

// Health reports the NATS connection state.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.conn == nil || !m.conn.IsConnected() {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not connected to NATS",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"bucket": m.store.Bucket(),
		},
	}
}

// Uploader returns the uploader, or nil before Start.
func (m *Module) Uploader() Uploader {
	if m.uploader == nil {
		return nil
	}
	return m.uploader
}
