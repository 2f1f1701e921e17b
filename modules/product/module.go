package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/media"
	"github.com/example/catalog-sync/modules/recordstore"
)

// Config holds product module configuration.
type Config struct {
	RefreshAfterWrite bool `env:"REFRESH_AFTER_WRITE" envDefault:"false"`
	LoadOnStart       bool `env:"LOAD_ON_START" envDefault:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{LoadOnStart: true}
}

// BackendProvider supplies the open record store backend.
type BackendProvider interface {
	Backend() recordstore.Backend
}

// UploaderProvider supplies the media uploader.
type UploaderProvider interface {
	Uploader() media.Uploader
}

// RunnerProvider supplies the async runner.
type RunnerProvider interface {
	Runner() *async.Runner
}

// Module wires the product repository and controller. It must be registered
// after the modules it depends on.
type Module struct {
	config     Config
	store      BackendProvider
	media      UploaderProvider
	runner     RunnerProvider
	controller *Controller
	logger     types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the product module.
func NewModule(cfg Config, store BackendProvider, uploads UploaderProvider, runner RunnerProvider, logger types.Logger) *Module {
	return &Module{
		config: cfg,
		store:  store,
		media:  uploads,
		runner: runner,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "product"
}

// Start builds the controller and, if configured, loads the catalog once.
func (m *Module) Start(_ context.Context) error {
	backend := m.store.Backend()
	if backend == nil {
		return fmt.Errorf("record store not started")
	}
	uploader := m.media.Uploader()
	if uploader == nil {
		return fmt.Errorf("media uploader not available")
	}
	runner := m.runner.Runner()
	if runner == nil {
		return fmt.Errorf("async runner not started")
	}

	repo, err := NewRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create product repository: %w", err)
	}
	m.controller = NewController(repo, uploader, runner, WithRefreshAfterWrite(m.config.RefreshAfterWrite))

	if m.config.LoadOnStart {
		started := time.Now()
		m.controller.Refresh(func(res Result) {
			if !res.Success {
				m.logger.Warn("Initial product load failed", "error", res.Err)
				return
			}
			m.logger.Info("Products loaded",
				"count", m.controller.Products().Len(),
				"duration", time.Since(started).String())
		})
	}

	m.logger.Info("Product module started", "refreshAfterWrite", m.config.RefreshAfterWrite)
	return nil
}

// Stop is a no-op; the controller holds no resources of its own.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Product module stopped")
	return nil
}

// Health reports the size of the projection.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.controller == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "controller not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"products": m.controller.Products().Len(),
			"stage":    m.controller.Stage().Get().String(),
		},
	}
}

// Controller returns the product controller, or nil before Start.
func (m *Module) Controller() *Controller {
	return m.controller
}
