package tail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"go.uber.org/zap"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

// Discovery lists the streams of a log group. A group that does not exist yet
// is waited for, one polling interval at a time, until it appears or the idle
// timeout elapses.
type Discovery struct {
	client      StreamLister
	dispatcher  *dispatch.Dispatcher
	interval    time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger
	sleep       func(context.Context, time.Duration) error
}

// NewDiscovery creates a Discovery.
func NewDiscovery(client StreamLister, d *dispatch.Dispatcher, opts Options) *Discovery {
	opts = opts.withDefaults()
	return &Discovery{
		client:      client,
		dispatcher:  d,
		interval:    opts.PollingInterval,
		idleTimeout: opts.IdleTimeout,
		logger:      opts.Logger,
		sleep:       sleepContext,
	}
}

// ListStreams returns every stream of group in page order. A missing group
// yields an empty result once the idle timeout is reached.
func (d *Discovery) ListStreams(ctx context.Context, group string) ([]model.LogStream, error) {
	var (
		streams []model.LogStream
		next    *string
		idle    time.Duration
	)
	for {
		in := &cloudwatchlogs.DescribeLogStreamsInput{
			LogGroupName: aws.String(group),
			NextToken:    next,
		}
		var opts []dispatch.CallOption
		if next != nil || idle > 0 {
			opts = append(opts, dispatch.Untraced())
		}
		out, err := dispatch.Do(ctx, d.dispatcher,
			dispatch.Request{Service: logsService, Operation: "DescribeLogStreams", Input: in},
			func(ctx context.Context) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
				return d.client.DescribeLogStreams(ctx, in)
			}, opts...)
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if next != nil || !errors.As(err, &notFound) {
				return nil, fmt.Errorf("describe log streams of %s: %w", group, err)
			}
			idle += d.interval
			if d.idleTimeout > 0 && idle >= d.idleTimeout {
				d.logger.Debug("log group did not appear", zap.String("group", group), zap.Duration("waited", idle))
				return nil, nil
			}
			d.logger.Debug("waiting for log group", zap.String("group", group), zap.Duration("waited", idle))
			if err := d.sleep(ctx, d.interval); err != nil {
				return nil, err
			}
			continue
		}

		for _, s := range out.LogStreams {
			streams = append(streams, model.LogStream{
				Name:               aws.ToString(s.LogStreamName),
				LastEventTimestamp: aws.ToInt64(s.LastEventTimestamp),
			})
		}
		if aws.ToString(out.NextToken) == "" || (next != nil && aws.ToString(out.NextToken) == aws.ToString(next)) {
			return streams, nil
		}
		next = out.NextToken
	}
}
