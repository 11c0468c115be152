package source

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// defaultBackoff applies when a 429 carries no usable Retry-After.
const defaultBackoff = time.Minute

// RateLimitError reports that a source refused work until RetryAfter elapses.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Source, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError wraps err. A non-positive wait selects a one minute backoff.
func NewRateLimitError(source string, err error, wait time.Duration) *RateLimitError {
	if wait <= 0 {
		wait = defaultBackoff
	}
	return &RateLimitError{Source: source, RetryAfter: wait, Err: err}
}

// RetryAfter reads a Retry-After header given either as delta seconds or as
// an HTTP date relative to now. Unparseable or past values yield 0.
func RetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(header)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now).Round(time.Second)
}
