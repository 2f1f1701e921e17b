// Package async runs store and upload calls off the observation loop and
// delivers their completions back onto it, one at a time.
package async

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

var (
	// ErrStopped is returned when work is issued after the loop has stopped.
	ErrStopped = errors.New("async runner stopped")

	// ErrPanic wraps a panic raised by background work.
	ErrPanic = errors.New("background work panicked")
)

// Config holds runner configuration.
type Config struct {
	PoolSize         int           `env:"POOL_SIZE" envDefault:"64"`
	QueueSize        int           `env:"QUEUE_SIZE" envDefault:"256"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:         64,
		QueueSize:        256,
		OperationTimeout: 30 * time.Second,
	}
}

// Runner executes background work on a goroutine pool and runs completion
// callbacks serially on a single dispatcher loop.
type Runner struct {
	pool     *ants.Pool
	posts    chan func()
	timeout  time.Duration
	stopped  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	done     chan struct{}
}

// NewRunner creates a runner. Run must be called to start delivering
// completions.
func NewRunner(cfg Config) (*Runner, error) {
	def := DefaultConfig()
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}

	pool, err := ants.NewPool(cfg.PoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			log.Printf("[async] worker panic: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Runner{
		pool:    pool,
		posts:   make(chan func(), cfg.QueueSize),
		timeout: cfg.OperationTimeout,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Run executes posted callbacks until ctx is cancelled. Callbacks still
// queued when the loop stops are dropped.
func (r *Runner) Run(ctx context.Context) {
	r.running.Store(true)
	defer func() {
		r.running.Store(false)
		r.stop()
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			if n := len(r.posts); n > 0 {
				log.Printf("[async] Dropping %d pending completions", n)
			}
			return
		case fn := <-r.posts:
			r.dispatch(fn)
		}
	}
}

// Wait blocks until Run has returned.
func (r *Runner) Wait() {
	<-r.done
}

// Running reports whether the dispatcher loop is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// InFlight returns the number of busy pool workers.
func (r *Runner) InFlight() int {
	return r.pool.Running()
}

// Post schedules fn on the dispatcher loop. It reports false when the loop
// has stopped and fn will never run.
func (r *Runner) Post(fn func()) bool {
	select {
	case <-r.stopped:
		return false
	default:
	}
	select {
	case <-r.stopped:
		return false
	case r.posts <- fn:
		return true
	}
}

// Release stops accepting work and frees the pool.
func (r *Runner) Release() {
	r.stop()
	r.pool.Release()
}

func (r *Runner) stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

func (r *Runner) dispatch(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[async] completion callback panicked: %v", p)
		}
	}()
	fn()
}

// Go runs work on the pool and delivers its outcome to done on the
// dispatcher loop. done runs exactly once unless the loop has stopped, in
// which case the completion is dropped. Issued work is never cancelled;
// it only runs under the configured operation timeout.
func Go[T any](r *Runner, work func(ctx context.Context) (T, error), done func(T, error)) {
	deliver := func(v T, err error) {
		if !r.Post(func() { done(v, err) }) {
			log.Printf("[async] Dispatcher stopped, dropping completion")
		}
	}

	select {
	case <-r.stopped:
		var zero T
		go deliver(zero, ErrStopped)
		return
	default:
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		v, err := call(ctx, work)
		deliver(v, err)
	}
	err := r.pool.Submit(task)
	if errors.Is(err, ants.ErrPoolOverload) {
		// Every worker is busy: run outside the pool rather than fail the
		// action.
		go task()
		return
	}
	if err != nil {
		var zero T
		// Delivered from a fresh goroutine so a caller on the loop never
		// blocks on its own queue.
		go deliver(zero, fmt.Errorf("failed to schedule work: %w", err))
	}
}

func call[T any](ctx context.Context, work func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return work(ctx)
}
