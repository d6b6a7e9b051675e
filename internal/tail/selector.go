package tail

import (
	"cmp"
	"slices"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

// SelectTop returns the topN streams with the most recent last event, newest
// first. Streams without a last event sort as timestamp 0; ties keep their
// discovery order. The input slice is not modified.
func SelectTop(streams []model.LogStream, topN int) []model.LogStream {
	if topN < 0 {
		topN = 0
	}
	sorted := slices.Clone(streams)
	slices.SortStableFunc(sorted, func(a, b model.LogStream) int {
		return cmp.Compare(b.LastEventTimestamp, a.LastEventTimestamp)
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}
	return sorted
}
