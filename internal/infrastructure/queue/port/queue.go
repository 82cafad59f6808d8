package port

import (
	"context"
	"time"
)

// Task is one background job message: a stable type identifier plus opaque
// payload bytes. Serialization stays with the callers.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error triggers a retry under the
// adapter's policy, so handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption tunes enqueue behavior. Adapters map the fields to the
// backend best-effort; zero values mean unspecified.
type EnqueueOption struct {
	Queue     string        // logical queue name
	ProcessIn time.Duration // delay before processing
	ProcessAt time.Time     // absolute schedule time, wins over ProcessIn
	MaxRetry  int           // max retries for the task
	UniqueTTL time.Duration // deduplicate within this window
	Retention time.Duration // keep result metadata this long
	Deadline  time.Time     // hard processing deadline
}

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs background workers. Run blocks until the context is canceled
// or Stop is called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
