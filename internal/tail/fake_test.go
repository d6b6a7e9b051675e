package tail

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

type readResult struct {
	out *cloudwatchlogs.GetLogEventsOutput
	err error
}

// fakeLogsClient serves scripted DescribeLogStreams pages keyed by token and
// scripted GetLogEvents results per stream.
type fakeLogsClient struct {
	mu sync.Mutex

	pages       map[string]*cloudwatchlogs.DescribeLogStreamsOutput
	notFound    int
	describeErr error
	describes   []string

	reads map[string][]readResult
	// endless makes an exhausted stream keep returning empty pages with a token.
	endless    bool
	readInputs []*cloudwatchlogs.GetLogEventsInput
}

func (f *fakeLogsClient) DescribeLogStreams(ctx context.Context, in *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := aws.ToString(in.NextToken)
	f.describes = append(f.describes, tok)
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.notFound > 0 {
		f.notFound--
		return nil, &types.ResourceNotFoundException{Message: aws.String("The specified log group does not exist.")}
	}
	if p, ok := f.pages[tok]; ok {
		return p, nil
	}
	return &cloudwatchlogs.DescribeLogStreamsOutput{}, nil
}

func (f *fakeLogsClient) GetLogEvents(ctx context.Context, in *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readInputs = append(f.readInputs, in)
	stream := aws.ToString(in.LogStreamName)
	script := f.reads[stream]
	if len(script) == 0 {
		if f.endless {
			return &cloudwatchlogs.GetLogEventsOutput{NextForwardToken: aws.String("f/idle")}, nil
		}
		return &cloudwatchlogs.GetLogEventsOutput{}, nil
	}
	r := script[0]
	f.reads[stream] = script[1:]
	return r.out, r.err
}

func (f *fakeLogsClient) readCount(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, in := range f.readInputs {
		if aws.ToString(in.LogStreamName) == stream {
			n++
		}
	}
	return n
}

func streamsPage(next string, streams ...types.LogStream) *cloudwatchlogs.DescribeLogStreamsOutput {
	out := &cloudwatchlogs.DescribeLogStreamsOutput{LogStreams: streams}
	if next != "" {
		out.NextToken = aws.String(next)
	}
	return out
}

func logStream(name string, last int64) types.LogStream {
	s := types.LogStream{LogStreamName: aws.String(name)}
	if last != 0 {
		s.LastEventTimestamp = aws.Int64(last)
	}
	return s
}

func eventsPage(next string, messages ...string) readResult {
	out := &cloudwatchlogs.GetLogEventsOutput{}
	for i, m := range messages {
		out.Events = append(out.Events, types.OutputLogEvent{
			Timestamp: aws.Int64(int64(1_700_000_000_000 + i)),
			Message:   aws.String(m),
		})
	}
	if next != "" {
		out.NextForwardToken = aws.String(next)
	}
	return readResult{out: out}
}

// sleepRecorder stands in for timed waits and records requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}
