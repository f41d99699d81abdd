package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultPoolSize = 1024
	defaultTimeout  = 30 * time.Second
)

var handled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizrank",
	Subsystem: "event",
	Name:      "handled_total",
	Help:      "Event handler runs by event name and outcome.",
}, []string{"event", "outcome"})

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. Handlers run on their own goroutine, detached from
// the publisher's cancellation, so a request returning does not abort them.
type Bus struct {
	pool    chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
	stopped  bool
}

type Option func(*Bus)

// WithPoolSize bounds how many handlers run at once. Publish blocks when the pool is full.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.pool = make(chan struct{}, n)
		}
	}
}

// WithTimeout bounds a single handler run.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		timeout:  defaultTimeout,
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches e to every handler subscribed to its name. Events published after
// Stop are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		slog.WarnContext(ctx, "event: bus stopped, event dropped", "event", e.Name())
		return
	}

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				handled.WithLabelValues(e.Name(), "panic").Inc()
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			handled.WithLabelValues(e.Name(), "error").Inc()
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
			return
		}

		handled.WithLabelValues(e.Name(), "ok").Inc()
	}()
}

// Stop rejects further events and waits for running handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
}
