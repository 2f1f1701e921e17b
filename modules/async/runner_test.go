package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		r.Wait()
		r.Release()
	})
	return r
}

type outcome[T any] struct {
	value T
	err   error
}

func TestGo_DeliversResult(t *testing.T) {
	r := startRunner(t, DefaultConfig())
	results := make(chan outcome[string], 1)

	Go(r, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, func(v string, err error) {
		results <- outcome[string]{v, err}
	})

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, "ok", res.value)
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestGo_DeliversError(t *testing.T) {
	r := startRunner(t, DefaultConfig())
	boom := errors.New("boom")
	results := make(chan error, 1)

	Go(r, func(ctx context.Context) (int, error) {
		return 0, boom
	}, func(_ int, err error) {
		results <- err
	})

	select {
	case err := <-results:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestGo_PanicBecomesError(t *testing.T) {
	r := startRunner(t, DefaultConfig())
	results := make(chan error, 1)

	Go(r, func(ctx context.Context) (int, error) {
		panic("kaboom")
	}, func(_ int, err error) {
		results <- err
	})

	select {
	case err := <-results:
		assert.ErrorIs(t, err, ErrPanic)
		assert.Contains(t, err.Error(), "kaboom")
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestGo_WorkRunsUnderTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	r := startRunner(t, cfg)
	results := make(chan error, 1)

	Go(r, func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	}, func(_ struct{}, err error) {
		results <- err
	})

	select {
	case err := <-results:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestRunner_CompletionsAreSerial(t *testing.T) {
	r := startRunner(t, DefaultConfig())

	const n = 100
	var (
		active  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		Go(r, func(ctx context.Context) (int, error) {
			return 1, nil
		}, func(int, error) {
			defer wg.Done()
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(100 * time.Microsecond)
			active.Add(-1)
		})
	}

	waitGroup(t, &wg)
	assert.False(t, overlap.Load(), "completion callbacks overlapped")
}

func TestRunner_CallbackPanicKeepsLoopAlive(t *testing.T) {
	r := startRunner(t, DefaultConfig())

	require.True(t, r.Post(func() { panic("callback") }))

	ran := make(chan struct{})
	require.True(t, r.Post(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after callback panic")
	}
}

func TestRunner_StoppedDropsCompletions(t *testing.T) {
	r, err := NewRunner(DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	r.Wait()
	defer r.Release()

	assert.False(t, r.Running())
	assert.False(t, r.Post(func() {}))

	called := make(chan struct{}, 1)
	Go(r, func(ctx context.Context) (int, error) {
		return 1, nil
	}, func(int, error) {
		called <- struct{}{}
	})

	select {
	case <-called:
		t.Fatal("completion delivered after loop stopped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGo_BusyPoolStillRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	r := startRunner(t, cfg)

	release := make(chan struct{})
	defer close(release)
	Go(r, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	}, func(int, error) {})

	results := make(chan outcome[int], 1)
	Go(r, func(ctx context.Context) (int, error) {
		return 2, nil
	}, func(v int, err error) {
		results <- outcome[int]{v, err}
	})

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, 2, res.value)
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered while pool was busy")
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completions")
	}
}
