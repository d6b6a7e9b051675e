package tail

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"go.uber.org/zap"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

// StreamTailer polls a single log stream forward from a start time.
//
// Each read emits the returned events in order. An empty read adds one polling
// interval to the idle duration, a non-empty one resets it. The tailer
// completes when the idle timeout is reached, or when the provider stops
// returning a forward token. A read error fails the feed.
type StreamTailer struct {
	client      EventReader
	dispatcher  *dispatch.Dispatcher
	group       string
	stream      string
	startTime   int64
	interval    time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger
	sleep       func(context.Context, time.Duration) error
}

// NewStreamTailer creates a tailer for group/stream starting at startTime (ms).
func NewStreamTailer(client EventReader, d *dispatch.Dispatcher, group, stream string, startTime int64, opts Options) *StreamTailer {
	opts = opts.withDefaults()
	return &StreamTailer{
		client:      client,
		dispatcher:  d,
		group:       group,
		stream:      stream,
		startTime:   startTime,
		interval:    opts.PollingInterval,
		idleTimeout: opts.IdleTimeout,
		logger:      opts.Logger.With(zap.String("group", group), zap.String("stream", stream)),
		sleep:       sleepContext,
	}
}

// Start begins polling in a new goroutine and returns its feed.
func (t *StreamTailer) Start(ctx context.Context) Feed {
	out := make(chan Message)
	go func() {
		defer close(out)
		e := emitter{ctx: ctx, out: out}
		t.logger.Debug("tailing stream")
		if err := t.poll(ctx, e); err != nil {
			t.logger.Debug("stream tail failed", zap.Error(err))
			e.send(errorMessage(err))
			return
		}
		t.logger.Debug("stream tail finished")
		e.send(completeMessage())
	}()
	return out
}

func (t *StreamTailer) poll(ctx context.Context, e emitter) error {
	var (
		token *string
		idle  time.Duration
	)
	for {
		in := &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(t.group),
			LogStreamName: aws.String(t.stream),
			StartTime:     aws.Int64(t.startTime),
			StartFromHead: aws.Bool(true),
			NextToken:     token,
		}
		out, err := dispatch.Do(ctx, t.dispatcher,
			dispatch.Request{Service: logsService, Operation: "GetLogEvents", Input: in},
			func(ctx context.Context) (*cloudwatchlogs.GetLogEventsOutput, error) {
				return t.client.GetLogEvents(ctx, in)
			})
		if err != nil {
			return fmt.Errorf("get log events of %s/%s: %w", t.group, t.stream, err)
		}

		for _, ev := range out.Events {
			if !e.send(eventMessage(model.LogEvent{
				Timestamp:  aws.ToInt64(ev.Timestamp),
				Message:    aws.ToString(ev.Message),
				LogGroup:   t.group,
				StreamName: t.stream,
			})) {
				return ctx.Err()
			}
		}

		if len(out.Events) == 0 {
			idle += t.interval
		} else {
			idle = 0
		}
		if t.idleTimeout > 0 && idle >= t.idleTimeout {
			return nil
		}
		if out.NextForwardToken == nil {
			return nil
		}
		token = out.NextForwardToken
		if err := t.sleep(ctx, t.interval); err != nil {
			return err
		}
	}
}
