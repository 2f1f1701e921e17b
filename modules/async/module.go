package async

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the application's Runner.
type Module struct {
	config Config
	runner *Runner
	cancel context.CancelFunc
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the async module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		config: cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "async"
}

// Start creates the worker pool and starts the dispatcher loop.
func (m *Module) Start(_ context.Context) error {
	runner, err := NewRunner(m.config)
	if err != nil {
		return err
	}
	m.runner = runner

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go runner.Run(loopCtx)

	m.logger.Info("Async runner started",
		"poolSize", m.config.PoolSize,
		"queueSize", m.config.QueueSize,
		"operationTimeout", m.config.OperationTimeout.String())
	return nil
}

// Stop stops the dispatcher loop and releases the pool.
func (m *Module) Stop(ctx context.Context) error {
	if m.runner == nil {
		return nil
	}
	m.cancel()

	select {
	case <-m.runner.done:
	case <-ctx.Done():
		return fmt.Errorf("async runner did not stop: %w", ctx.Err())
	}
	m.runner.Release()
	m.logger.Info("Async runner stopped")
	return nil
}

// Health reports whether the dispatcher loop is running.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.runner == nil || !m.runner.Running() {
		return mono.HealthStatus{
			Healthy: false,
			Message: "dispatcher loop not running",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"inFlight": m.runner.InFlight(),
		},
	}
}

// Runner returns the runner. It is nil until the module has started.
func (m *Module) Runner() *Runner {
	return m.runner
}
