package fetch

import (
	"errors"
	"fmt"
)

// ErrBotWall marks responses that look like bot blocking rather than a
// genuine server failure (403/429/503 or a known-aggressive domain).
var ErrBotWall = errors.New("bot wall")

// ErrUnfetchable is returned when every strategy, including the browser
// and archive fallbacks, has been exhausted for a URL.
var ErrUnfetchable = errors.New("url unfetchable")

// ErrNoSnapshot is the non-error outcome of an archive lookup miss.
var ErrNoSnapshot = errors.New("no archive snapshot")

// StatusError carries the HTTP status of a failed fetch.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// botWallStatus reports whether a status code typically indicates bot
// blocking.
func botWallStatus(status int) bool {
	return status == 403 || status == 429 || status == 503
}

// retriableStatus reports whether a status is worth a plain-HTTP retry.
func retriableStatus(status int, allow []int) bool {
	if status >= 500 && status < 600 {
		return true
	}
	for _, a := range allow {
		if status == a {
			return true
		}
	}
	return false
}
