package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
)

func throttled() error {
	return &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}
}

// recordSleeps replaces the dispatcher delay with a recorder that returns immediately.
func recordSleeps(d *Dispatcher) *[]time.Duration {
	var mu sync.Mutex
	var got []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, dur)
		return ctx.Err()
	}
	return &got
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	const concurrency, tasks = 3, 20
	d := New(Options{Concurrency: concurrency})

	var inFlight, maxInFlight int64
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Run(context.Background(), Request{Service: "logs", Operation: "Test"}, func(ctx context.Context) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					m := atomic.LoadInt64(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt64(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got > concurrency || got == 0 {
		t.Fatalf("max in-flight = %d, want 1..%d", got, concurrency)
	}
}

func TestDoRetriesRateLimitedCalls(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantCalls  int
		wantSleeps int
		wantValue  string
		wantLimit  bool
	}{
		{"no throttling", 0, 0, 1, 0, "ok", false},
		{"two throttles then success", 2, 0, 3, 2, "ok", false},
		{"unbounded retries survive many throttles", 25, 0, 26, 25, "ok", false},
		{"retry ceiling reached", 5, 2, 3, 2, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Options{RetryTimeout: 200 * time.Millisecond, MaxRetries: tt.maxRetries})
			sleeps := recordSleeps(d)

			calls := 0
			got, err := Do(context.Background(), d, Request{Service: "logs", Operation: "GetLogEvents"}, func(ctx context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", throttled()
				}
				return "ok", nil
			})
			if tt.wantLimit {
				if !errors.Is(err, ErrRetryLimit) {
					t.Fatalf("error = %v, want ErrRetryLimit", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantValue {
				t.Fatalf("value = %q, want %q", got, tt.wantValue)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(*sleeps) != tt.wantSleeps {
				t.Fatalf("sleeps = %d, want %d", len(*sleeps), tt.wantSleeps)
			}
			for _, s := range *sleeps {
				if s != 200*time.Millisecond {
					t.Fatalf("sleep = %v, want 200ms", s)
				}
			}
		})
	}
}

func TestDoPropagatesOtherErrors(t *testing.T) {
	d := New(Options{})
	sleeps := recordSleeps(d)
	boom := &smithy.GenericAPIError{Code: "AccessDeniedException"}

	calls := 0
	_, err := Do(context.Background(), d, Request{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if calls != 1 || len(*sleeps) != 0 {
		t.Fatalf("calls = %d sleeps = %d, want 1 and 0", calls, len(*sleeps))
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	d := New(Options{RetryTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errc := make(chan error, 1)
	go func() {
		errc <- d.Run(ctx, Request{}, func(ctx context.Context) error {
			calls++
			return throttled()
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestMiddleware(t *testing.T) {
	var wrapped []string
	mw := MiddlewareFunc(func(req Request, next Handler) Handler {
		return func(ctx context.Context) error {
			wrapped = append(wrapped, req.String())
			_ = next(ctx)
			return errors.New("middleware must not leak this")
		}
	})
	d := New(Options{Middleware: mw})
	recordSleeps(d)

	calls := 0
	got, err := Do(context.Background(), d, Request{Service: "logs", Operation: "DescribeLogStreams"}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, throttled()
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("Do = (%d, %v), want (7, nil)", got, err)
	}
	if len(wrapped) != 1 || wrapped[0] != "aws::logs::DescribeLogStreams" {
		t.Fatalf("middleware saw %v, want one DescribeLogStreams call", wrapped)
	}

	if _, err := Do(context.Background(), d, Request{Service: "logs", Operation: "DescribeLogStreams"}, func(ctx context.Context) (int, error) {
		return 1, nil
	}, Untraced()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wrapped) != 1 {
		t.Fatalf("untraced call reached middleware: %v", wrapped)
	}
}

func TestMiddlewareSkippingNextStillExecutes(t *testing.T) {
	mw := MiddlewareFunc(func(req Request, next Handler) Handler {
		return func(ctx context.Context) error { return nil }
	})
	d := New(Options{Middleware: mw})
	calls := 0
	if err := d.Run(context.Background(), Request{}, func(ctx context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"throttling", throttled(), true},
		{"too many requests", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, true},
		{"wrapped", errors.Join(errors.New("ctx"), throttled()), true},
		{"other api error", &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Fatalf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// holdSlot occupies the only slot of d until the returned func is called.
func holdSlot(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	started, release := make(chan struct{}), make(chan struct{})
	go func() {
		_ = d.Run(context.Background(), Request{Service: "logs", Operation: "Hold"}, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	return func() { close(release) }
}

// enqueue starts one Run per name, each after the previous one is waiting for
// a slot, and records the order in which calls begin executing.
func enqueue(d *Dispatcher, names []string, fail map[string]int) (wait func() []string) {
	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Run(context.Background(), Request{Service: "logs", Operation: name}, func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				if fail[name] > 0 {
					fail[name]--
					return throttled()
				}
				return nil
			})
		}()
		time.Sleep(10 * time.Millisecond)
	}
	return func() []string {
		wg.Wait()
		return order
	}
}

func TestDispatcherAdmitsInFIFOOrder(t *testing.T) {
	d := New(Options{Concurrency: 1})
	release := holdSlot(t, d)

	wait := enqueue(d, []string{"a", "b", "c", "d", "e"}, nil)
	release()

	if got, want := wait(), []string{"a", "b", "c", "d", "e"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("start order = %v, want %v", got, want)
	}
}

func TestThrottledCallRequeuesBehindWaiters(t *testing.T) {
	d := New(Options{Concurrency: 1})
	recordSleeps(d)
	release := holdSlot(t, d)

	wait := enqueue(d, []string{"a", "b", "c"}, map[string]int{"a": 1})
	release()

	if got, want := wait(), []string{"a", "b", "c", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("start order = %v, want %v", got, want)
	}
}
