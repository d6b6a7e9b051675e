// Package dispatch runs remote calls with bounded concurrency and retries
// calls rejected by the provider for exceeding its rate limits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency  = 5
	DefaultRetryTimeout = 200 * time.Millisecond
)

// ErrRetryLimit is returned when a rate-limited call exhausted MaxRetries.
var ErrRetryLimit = errors.New("retry limit reached")

// Request identifies a remote call. It is passed to Middleware only.
type Request struct {
	Service   string
	Operation string
	Input     any
}

func (r Request) String() string {
	return fmt.Sprintf("aws::%s::%s", r.Service, r.Operation)
}

// Handler executes a call.
type Handler func(ctx context.Context) error

// Middleware wraps the execution of a top-level call, retries included.
// Implementations must invoke next exactly once. Whatever the wrapped handler
// returns, the caller of the dispatcher sees the error produced by next.
type Middleware interface {
	Wrap(req Request, next Handler) Handler
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(req Request, next Handler) Handler

func (f MiddlewareFunc) Wrap(req Request, next Handler) Handler {
	return f(req, next)
}

// Options configures a Dispatcher. Zero values select the defaults.
type Options struct {
	Concurrency  int
	RetryTimeout time.Duration
	// MaxRetries bounds retries of rate-limited calls; 0 retries forever.
	MaxRetries int
	Middleware Middleware
	Logger     *zap.Logger
}

// Dispatcher is shared by every remote operation of a session. At most
// Concurrency calls execute at once; waiting calls are admitted in FIFO order.
type Dispatcher struct {
	slots         *semaphore.Weighted
	concurrency   int
	retryTimeout  time.Duration
	maxRetries    int
	middleware    Middleware
	logger        *zap.Logger
	isRateLimited func(error) bool
	sleep         func(context.Context, time.Duration) error
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = DefaultRetryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		slots:         semaphore.NewWeighted(int64(opts.Concurrency)),
		concurrency:   opts.Concurrency,
		retryTimeout:  opts.RetryTimeout,
		maxRetries:    opts.MaxRetries,
		middleware:    opts.Middleware,
		logger:        opts.Logger,
		isRateLimited: IsRateLimited,
		sleep:         sleepContext,
	}
}

// Concurrency returns the configured slot count.
func (d *Dispatcher) Concurrency() int { return d.concurrency }

type callOptions struct {
	untraced bool
}

// CallOption tunes a single dispatch.
type CallOption func(*callOptions)

// Untraced skips the Middleware for this call. Pagination follow-up calls use
// it so that a paginated listing is reported once.
func Untraced() CallOption {
	return func(o *callOptions) { o.untraced = true }
}

// Run dispatches call and returns its final error.
func (d *Dispatcher) Run(ctx context.Context, req Request, call Handler, opts ...CallOption) error {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	if d.middleware == nil || o.untraced {
		return d.execute(ctx, req, call)
	}

	var (
		result error
		called bool
	)
	next := func(ctx context.Context) error {
		called = true
		result = d.execute(ctx, req, call)
		return result
	}
	_ = d.middleware.Wrap(req, next)(ctx)
	if !called {
		return d.execute(ctx, req, call)
	}
	return result
}

// Do dispatches fn and returns its value.
func Do[T any](ctx context.Context, d *Dispatcher, req Request, fn func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var out T
	err := d.Run(ctx, req, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (d *Dispatcher) execute(ctx context.Context, req Request, call Handler) error {
	for retries := 0; ; retries++ {
		if err := d.slots.Acquire(ctx, 1); err != nil {
			return err
		}
		err := call(ctx)
		d.slots.Release(1)

		if err == nil || !d.isRateLimited(err) {
			return err
		}
		if d.maxRetries > 0 && retries >= d.maxRetries {
			return fmt.Errorf("%s: %w after %d retries: %w", req, ErrRetryLimit, retries, err)
		}
		d.logger.Debug("rate limited, retrying",
			zap.String("call", req.String()),
			zap.Int("retry", retries+1),
			zap.Duration("delay", d.retryTimeout),
		)
		if err := d.sleep(ctx, d.retryTimeout); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
