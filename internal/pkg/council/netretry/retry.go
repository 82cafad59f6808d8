// Package netretry wraps external network calls (LLM, TTS) in a bounded retry
// policy. Transient transport failures are retried with a fixed delay;
// everything else propagates unchanged.
package netretry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries = 3
	DefaultDelay      = time.Second
)

// Policy is stateless and reentrant; a zero value is not usable, construct
// with NewPolicy. The same policy can wrap any zero-argument retryable
// operation from any goroutine.
type Policy struct {
	maxRetries uint64
	delay      time.Duration
}

// NewPolicy builds a policy with the given bound and fixed delay between
// attempts. Non-positive arguments fall back to the defaults.
func NewPolicy(maxRetries int, delay time.Duration) Policy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return Policy{maxRetries: uint64(maxRetries), delay: delay}
}

// Do runs op, retrying transient failures up to the policy bound. The last
// error is returned unchanged once retries are exhausted; non-transient
// errors return immediately. Once the caller's context is done, nothing is
// retried regardless of classification.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(p.maxRetries, retry.NewConstant(p.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			if ctx.Err() == nil && IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	return err
}

// IsTransient reports whether err looks like a recoverable transport fault:
// connection reset, timeout, abrupt stream termination, or a low-level socket
// error. Application-level failures are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Per-request client timeouts match context.DeadlineExceeded in their
	// error chain, so the timeout check runs before the context short-circuit.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
