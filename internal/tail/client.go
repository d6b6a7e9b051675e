// Package tail discovers the log streams of a CloudWatch Logs group, polls
// the most recently active ones and merges their events into a single Feed.
package tail

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// StreamLister is the CloudWatch Logs call used for stream discovery.
type StreamLister interface {
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
}

// EventReader is the CloudWatch Logs call used to poll a stream.
type EventReader interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// LogsClient is the subset of the CloudWatch Logs API this package uses.
type LogsClient interface {
	StreamLister
	EventReader
}

const logsService = "logs"
