// Package timeutil parses the time-valued headers Twitch attaches to Helix
// responses: Ratelimit-Reset carries epoch seconds, Retry-After carries
// either delay seconds or an HTTP date.
package timeutil

import (
	"net/http"
	"strconv"
	"time"
)

// ParseEpochSeconds converts an epoch-seconds header value to a time. It
// returns the zero time when the value is empty or malformed.
func ParseEpochSeconds(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// ParseIntHeader converts a numeric header value, returning -1 when the
// value is absent or malformed so that callers can tell "absent" from "0".
func ParseIntHeader(s string) int {
	if s == "" {
		return -1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// ParseRetryAfter converts a Retry-After header value to a wait duration
// relative to now. Zero means no usable value.
func ParseRetryAfter(s string, now time.Time) time.Duration {
	if s == "" {
		return 0
	}
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(s); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
