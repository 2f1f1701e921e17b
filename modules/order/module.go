package order

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/recordstore"
)

// BackendProvider supplies the open record store backend.
type BackendProvider interface {
	Backend() recordstore.Backend
}

// RunnerProvider supplies the async runner.
type RunnerProvider interface {
	Runner() *async.Runner
}

// Module wires the order repository and controller and loads orders once on
// start.
type Module struct {
	store      BackendProvider
	runner     RunnerProvider
	controller *Controller
	logger     types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the order module.
func NewModule(store BackendProvider, runner RunnerProvider, logger types.Logger) *Module {
	return &Module{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "order"
}

// Start builds the controller and issues the first load.
func (m *Module) Start(_ context.Context) error {
	backend := m.store.Backend()
	if backend == nil {
		return fmt.Errorf("record store not started")
	}
	runner := m.runner.Runner()
	if runner == nil {
		return fmt.Errorf("async runner not started")
	}

	repo, err := NewRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create order repository: %w", err)
	}
	m.controller = NewController(repo, runner)
	m.controller.LoadAllOrders(func(res Result) {
		if !res.Success {
			m.logger.Warn("Initial order load failed", "error", res.Err)
			return
		}
		m.logger.Info("Orders loaded", "message", res.Message)
	})

	m.logger.Info("Order module started")
	return nil
}

// Stop is a no-op.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Order module stopped")
	return nil
}

// Health reports the projection size and the last load error.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.controller == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "controller not initialized",
		}
	}
	details := map[string]any{
		"orders": m.controller.Orders().Len(),
	}
	if msg := m.controller.Error().Get(); msg != "" {
		details["lastError"] = msg
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// Controller returns the order controller, or nil before Start.
func (m *Module) Controller() *Controller {
	return m.controller
}
