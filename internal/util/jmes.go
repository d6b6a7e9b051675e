package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// Query is a compiled JMESPath expression applied to log messages.
type Query struct {
	expr string
	jp   *jmespath.JMESPath
}

// NewQuery compiles expr.
func NewQuery(expr string) (*Query, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty jmespath expression")
	}
	jp, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile jmespath %q: %w", expr, err)
	}
	return &Query{expr: expr, jp: jp}, nil
}

func (q *Query) String() string { return q.expr }

// Apply evaluates the query against a message, decoded as JSON if possible and
// otherwise wrapped as {"message": raw}. String results are returned as is,
// other results as compact JSON. ok is false when the result is empty.
func (q *Query) Apply(message string) (string, bool, error) {
	var input any
	if err := json.Unmarshal([]byte(strings.TrimSpace(message)), &input); err != nil {
		input = map[string]any{"message": message}
	}

	res, err := q.jp.Search(input)
	if err != nil {
		return "", false, fmt.Errorf("jmespath search failed: %w", err)
	}
	if isEmpty(res) {
		return "", false, nil
	}
	if s, ok := res.(string); ok {
		return s, true, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", false, fmt.Errorf("marshal result failed: %w", err)
	}
	return string(b), true, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
