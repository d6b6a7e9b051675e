package model

import "time"

// LogEvent is a single entry read from a log stream.
type LogEvent struct {
	Timestamp  int64 // milliseconds since epoch
	Message    string
	LogGroup   string
	StreamName string
}

// Time returns the event timestamp as a time.Time.
func (e LogEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// LogStream is a discovery result. LastEventTimestamp is zero when the
// provider did not report one.
type LogStream struct {
	Name               string
	LastEventTimestamp int64
}
