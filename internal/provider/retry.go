package provider

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"time"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// serverError marks a 5xx provider response as retryable.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("provider server error (status %d)", e.status)
}

// isRetryable classifies an error from a single attempt. Only transient
// failures qualify: 5xx responses, timeouts, and connection-level errors.
// 4xx rejections and decode failures never retry; repeating them cannot
// change the outcome.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return false
}

// backoffFor returns the delay before retry n (1-based): exponential doubling
// from baseBackoff plus up to 50% jitter to avoid thundering retries.
func backoffFor(n int) time.Duration {
	d := baseBackoff << (n - 1)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}
