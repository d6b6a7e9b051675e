package dispatch

import (
	"errors"

	"github.com/aws/smithy-go"
)

// Provider error codes that signal the caller is being throttled.
var rateLimitCodes = map[string]struct{}{
	"ThrottlingException":      {},
	"TooManyRequestsException": {},
}

// IsRateLimited reports whether err is a provider throttling error.
func IsRateLimited(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	_, ok := rateLimitCodes[apiErr.ErrorCode()]
	return ok
}
