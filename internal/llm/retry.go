package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// TransientError wraps an error that is safe to retry, such as a rate limit
// or a temporary upstream outage.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying. Cancellation is never
// transient; deadline expiry, network timeouts, HTTP 429 and 5xx are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// RetryDelay returns the backoff delay before retry attempt n (0-based):
// base, 2*base, 4*base... plus up to half the delay in jitter.
func RetryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << attempt
	jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
	return delay + jitter
}
