package tail

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
)

// Service tails whole log groups.
type Service struct {
	client     LogsClient
	dispatcher *dispatch.Dispatcher
	opts       Options
	discovery  *Discovery
	now        func() time.Time
}

// NewService creates a Service. All remote calls go through d.
func NewService(client LogsClient, d *dispatch.Dispatcher, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		client:     client,
		dispatcher: d,
		opts:       opts,
		discovery:  NewDiscovery(client, d, opts),
		now:        time.Now,
	}
}

// TailLogGroup tails the most recently active streams of group from now on.
// The feed completes once every selected stream tail has completed; it
// completes immediately when the group has no streams.
func (s *Service) TailLogGroup(ctx context.Context, group string) Feed {
	start := s.now().UnixMilli()
	return Defer(ctx, func(ctx context.Context) ([]Feed, error) {
		streams, err := s.discovery.ListStreams(ctx, group)
		if err != nil {
			return nil, err
		}
		selected := SelectTop(streams, s.opts.TopN)
		s.opts.Logger.Debug("selected log streams",
			zap.String("group", group),
			zap.Int("discovered", len(streams)),
			zap.Int("selected", len(selected)),
		)
		feeds := make([]Feed, 0, len(selected))
		for _, st := range selected {
			t := NewStreamTailer(s.client, s.dispatcher, group, st.Name, start, s.opts)
			feeds = append(feeds, t.Start(ctx))
		}
		return feeds, nil
	})
}
