package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/broadcast"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/generation"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/netretry"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/port"
)

// ErrMeetingNotFound reports a reconnection attempt against an id that exists
// neither in process nor in storage.
var ErrMeetingNotFound = errors.New("manager: meeting not found")

// Registry tracks live managers by meeting id and recovers persisted meetings
// after a restart. It is the single place a reconnecting client resolves its
// meeting through.
type Registry struct {
	mu       sync.Mutex
	managers map[int64]*Manager

	gen      generation.Generator
	pipeline AudioPipeline
	repo     port.MeetingRepository
	retry    netretry.Policy
	reporter IncidentReporter
	cfg      Config
	met      *metrics.Metrics
	log      *slog.Logger
}

func NewRegistry(gen generation.Generator, pipeline AudioPipeline, repo port.MeetingRepository,
	retry netretry.Policy, reporter IncidentReporter, cfg Config,
	met *metrics.Metrics, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		managers: make(map[int64]*Manager),
		gen:      gen,
		pipeline: pipeline,
		repo:     repo,
		retry:    retry,
		reporter: reporter,
		cfg:      cfg,
		met:      met,
		log:      log,
	}
}

// Create builds a fresh manager for a new meeting. The manager is registered
// lazily on Register once Start allocated an id.
func (r *Registry) Create() *Manager {
	return New(r.gen, r.pipeline, r.repo, NewRoundRobin(), r.retry, r.reporter, r.cfg, r.met, r.log)
}

// Register indexes a started manager under its meeting id.
func (r *Registry) Register(m *Manager) {
	id := m.MeetingID()
	if id == 0 {
		return
	}
	r.mu.Lock()
	r.managers[id] = m
	r.mu.Unlock()
}

// Resolve finds the manager for a meeting id. An in-process manager is
// returned as is; otherwise the meeting is loaded from storage and a manager
// rebuilt around it. Unknown ids return ErrMeetingNotFound.
func (r *Registry) Resolve(ctx context.Context, meetingID int64) (*Manager, error) {
	r.mu.Lock()
	if m, ok := r.managers[meetingID]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	meeting, err := r.repo.GetMeeting(ctx, meetingID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrMeetingNotFound
	}
	if err != nil {
		return nil, err
	}

	m := r.Create()
	m.restore(meeting)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another session may have recovered the same meeting concurrently.
	if existing, ok := r.managers[meetingID]; ok {
		return existing, nil
	}
	r.managers[meetingID] = m
	return m, nil
}

// Reattach resolves the meeting and binds the broadcaster in one step,
// replaying stored conversation and audio to the new client.
func (r *Registry) Reattach(ctx context.Context, meetingID int64, bc broadcast.MeetingBroadcaster, in ReattachInput) (*Manager, error) {
	m, err := r.Resolve(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	m.Reattach(bc, in)
	return m, nil
}
