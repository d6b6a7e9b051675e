package tail

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollingInterval = 50 * time.Millisecond
	DefaultTopN            = 9999
)

// Options configures discovery and polling. Zero values select the defaults;
// IdleTimeout 0 disables the idle timeout.
type Options struct {
	PollingInterval time.Duration
	IdleTimeout     time.Duration
	TopN            int
	Logger          *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PollingInterval <= 0 {
		o.PollingInterval = DefaultPollingInterval
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.IdleTimeout < 0 {
		o.IdleTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
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
