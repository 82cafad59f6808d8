// Package errorreport forwards unrecoverable faults to the background queue
// so an operator-facing worker can pick them up. Reporting is best-effort:
// a broken queue must never mask the original fault.
package errorreport

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/queue/adapter"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/queue/port"
)

// TaskTypeIncident is the queue task type for incident reports.
const TaskTypeIncident = "errorreport:incident"

const enqueueTimeout = 5 * time.Second

// Incident is the persisted report payload.
type Incident struct {
	Kind  string         `json:"kind"` // "persistence", "process", ...
	Error string         `json:"error"`
	Meta  map[string]any `json:"meta,omitempty"`
	Date  time.Time      `json:"date"`
}

// Reporter enqueues incidents. A nil queue client degrades to log-only, which
// keeps development setups free of a Redis dependency.
type Reporter struct {
	queue port.Client
	log   *slog.Logger
}

func NewReporter(queue port.Client, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{queue: queue, log: log.With("component", "errorreport")}
}

// Incident records one fault. Called from meeting managers on fatal
// persistence errors; never returns an error because there is nothing the
// caller could do with one.
func (r *Reporter) Incident(ctx context.Context, kind string, err error, meta map[string]any) {
	r.log.Error("incident", "kind", kind, "err", err, "meta", meta)
	if r.queue == nil {
		return
	}

	payload, marshalErr := json.Marshal(Incident{
		Kind:  kind,
		Error: err.Error(),
		Meta:  meta,
		Date:  time.Now().UTC(),
	})
	if marshalErr != nil {
		r.log.Error("incident payload marshal failed", "err", marshalErr)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	_, enqErr := r.queue.Enqueue(ctx, port.Task{Type: TaskTypeIncident, Payload: payload},
		port.EnqueueOption{Queue: adapter.IncidentQueue, MaxRetry: 5, Retention: 7 * 24 * time.Hour})
	if enqErr != nil {
		r.log.Error("incident enqueue failed", "err", enqErr)
	}
}

// Fatal reports a process-level fault and terminates. Faults outside any
// meeting scope leave the process in an unknown state, so restarting is the
// only safe reaction.
func (r *Reporter) Fatal(err error) {
	r.Incident(context.Background(), "process", err, nil)
	r.log.Error("unhandled process error, exiting", "err", err)
	os.Exit(1)
}

// RegisterHandler wires the worker-side consumer that surfaces incidents to
// the operator log. Storage or paging integrations hang off this handler.
func RegisterHandler(srv port.Server, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	srv.Register(TaskTypeIncident, func(ctx context.Context, task port.Task) error {
		var inc Incident
		if err := json.Unmarshal(task.Payload, &inc); err != nil {
			return err
		}
		log.Warn("incident received", "kind", inc.Kind, "error", inc.Error, "date", inc.Date, "meta", inc.Meta)
		return nil
	})
}
