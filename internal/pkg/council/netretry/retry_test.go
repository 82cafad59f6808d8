package netretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"
)

func TestDoRetriesTransientUpToBound(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return syscall.ECONNRESET
	})
	if err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Errorf("expected the last error back, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d calls", calls)
	}
}

func TestDoStopsOnNonTransient(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	sentinel := errors.New("provider rejected the request")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-transient errors must not retry, got %d calls", calls)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// clientTimeoutErr mirrors what net/http returns when Client.Timeout fires:
// a net.Error whose chain also matches context.DeadlineExceeded.
type clientTimeoutErr struct{}

func (clientTimeoutErr) Error() string {
	return "context deadline exceeded (Client.Timeout exceeded while awaiting headers)"
}
func (clientTimeoutErr) Timeout() bool        { return true }
func (clientTimeoutErr) Temporary() bool      { return true }
func (clientTimeoutErr) Is(target error) bool { return target == context.DeadlineExceeded }

func clientTimeout() error {
	return &url.Error{Op: "Post", URL: "https://api.example.com/v1", Err: clientTimeoutErr{}}
}

func TestDoRetriesClientRequestTimeout(t *testing.T) {
	p := NewPolicy(2, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return clientTimeout()
	})
	if err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
	if calls != 3 {
		t.Errorf("request timeouts must retry, got %d calls", calls)
	}
}

func TestDoDoesNotRetryAfterCallerCancel(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return clientTimeout()
	})
	if err == nil {
		t.Fatal("expected the error back")
	}
	if calls != 1 {
		t.Errorf("a done caller context must stop retries, got %d calls", calls)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"broken pipe", syscall.EPIPE, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"wrapped reset", fmt.Errorf("call failed: %w", syscall.ECONNRESET), true},
		{"net timeout", timeoutErr{}, true},
		{"client request timeout", clientTimeout(), true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("down")}, true},
		{"application error", errors.New("bad voice id"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
