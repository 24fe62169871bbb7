package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryInterceptor re-runs the rest of the chain up to attempts times in
// total when it fails with a transient error: a timeout, a network error,
// HTTP 429 or a 5xx status. The delay doubles after each failure.
func RetryInterceptor(attempts int, delay time.Duration) Interceptor {
	if attempts < 1 {
		attempts = 1
	}
	return InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
		req := chain.Request()
		wait := delay
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			res, err := chain.Proceed(ctx, req)
			if err == nil {
				return res, nil
			}
			lastErr = err
			if attempt == attempts || !Retryable(err) {
				break
			}
			chain.Logger().Debug("retrying fetch", "uri", req.URI(), "attempt", attempt, "error", err)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			wait *= 2
		}
		return nil, lastErr
	})
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var fe *Error
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
