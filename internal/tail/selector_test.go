package tail

import (
	"reflect"
	"testing"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

func names(streams []model.LogStream) []string {
	out := make([]string, 0, len(streams))
	for _, s := range streams {
		out = append(out, s.Name)
	}
	return out
}

func TestSelectTop(t *testing.T) {
	tests := []struct {
		name    string
		streams []model.LogStream
		topN    int
		want    []string
	}{
		{"newest wins", []model.LogStream{{Name: "a", LastEventTimestamp: 100}, {Name: "b", LastEventTimestamp: 200}}, 1, []string{"b"}},
		{"sorted descending", []model.LogStream{{Name: "a", LastEventTimestamp: 100}, {Name: "b", LastEventTimestamp: 300}, {Name: "c", LastEventTimestamp: 200}}, 10, []string{"b", "c", "a"}},
		{"missing timestamp sorts last", []model.LogStream{{Name: "a", LastEventTimestamp: 0}, {Name: "b", LastEventTimestamp: 5}}, 2, []string{"b", "a"}},
		{"ties keep discovery order", []model.LogStream{{Name: "a", LastEventTimestamp: 7}, {Name: "b", LastEventTimestamp: 9}, {Name: "c", LastEventTimestamp: 7}, {Name: "d", LastEventTimestamp: 7}}, 3, []string{"b", "a", "c"}},
		{"topN larger than input", []model.LogStream{{Name: "a", LastEventTimestamp: 1}}, 9999, []string{"a"}},
		{"topN zero", []model.LogStream{{Name: "a", LastEventTimestamp: 1}}, 0, []string{}},
		{"empty input", nil, 3, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(SelectTop(tt.streams, tt.topN))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SelectTop = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectTopDoesNotModifyInput(t *testing.T) {
	in := []model.LogStream{{Name: "a", LastEventTimestamp: 1}, {Name: "b", LastEventTimestamp: 2}}
	SelectTop(in, 1)
	if in[0].Name != "a" || in[1].Name != "b" {
		t.Fatalf("input reordered: %v", in)
	}
}
