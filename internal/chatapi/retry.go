package chatapi

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	maxDelay         = 5 * time.Second
	jitterPercent    = 30 // ±30% jitter
)

// isRetryableError reports whether a failed read is worth repeating: rate
// limiting, gateway errors, or a transport failure that was not a cancel.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		return false
	}
	switch rerr.StatusCode {
	case 0:
		return rerr.Err != nil
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay returns the delay before retry n (0-indexed) with jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for range attempt {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	span := int64(delay) * jitterPercent / 100
	if span <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(2*span)-span)
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
