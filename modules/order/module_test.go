package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/catalog-sync/domain/order"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/recordstore"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type staticBackend struct{ b recordstore.Backend }

func (s staticBackend) Backend() recordstore.Backend { return s.b }

type staticRunner struct{ r *async.Runner }

func (s staticRunner) Runner() *async.Runner { return s.r }

func TestModule_StartLoadsOrders(t *testing.T) {
	backend := recordstore.NewMemoryBackend()
	repo, err := NewRepository(backend)
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if _, err := repo.Create(context.Background(), order.Order{OrderStatus: order.StatusPending, TotalAmount: 1}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m := NewModule(staticBackend{backend}, staticRunner{newRunner(t)}, &mockLogger{})
	ctx := context.Background()

	if name := m.Name(); name != "order" {
		t.Errorf("Name() = %q, want 'order'", name)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Controller().Orders().Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := m.Controller().Orders().Len(); n != 1 {
		t.Errorf("Orders().Len() = %d, want 1", n)
	}
	if h := m.Health(ctx); !h.Healthy {
		t.Errorf("Health() = %+v", h)
	}
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestModule_StartWithoutBackend(t *testing.T) {
	m := NewModule(staticBackend{}, staticRunner{newRunner(t)}, &mockLogger{})
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start() expected error")
	}
}
