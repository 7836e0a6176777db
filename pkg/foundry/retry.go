package foundry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// IsTransient reports whether a Foundry call failed in a way worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// RetryTransient calls f up to attempts times, doubling the pause (capped at 2s) after each
// transient failure. Non-transient errors return immediately.
func RetryTransient(ctx context.Context, attempts int, initialSleep time.Duration, f func() error) error {
	sleep := initialSleep
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) || i == attempts-1 {
			return err
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		sleep *= 2
		if sleep > 2*time.Second {
			sleep = 2 * time.Second
		}
	}
	return lastErr
}

// IsOpenTransactionAlreadyExists matches the conflict Foundry returns when a build already holds an
// open transaction on the dataset.
func IsOpenTransactionAlreadyExists(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != 409 {
		return false
	}
	return he.ErrorName == "Datasets:OpenTransactionAlreadyExists" || he.ErrorName == "OpenTransactionAlreadyExists"
}
