package llm

import (
	"errors"
	"strings"
)

// ErrRateLimited is returned when the endpoint keeps rejecting calls for
// quota or throughput reasons after the full backoff schedule.
var ErrRateLimited = errors.New("llm rate limited")

var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"429",
	"too many requests",
	"quota",
	"throttl",
	"limit exceeded",
}

// IsRateLimit reports whether an error looks like a rate-limit or quota
// rejection. Providers differ in how they phrase these, so matching is
// textual over the status code and message.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
