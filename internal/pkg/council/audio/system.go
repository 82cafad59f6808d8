package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/netretry"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/pronounce"
)

// ErrPersistence marks a failed audio-record write. It is fatal for the
// affected meeting; the caller decides how to surface that.
var ErrPersistence = fmt.Errorf("audio: persistence error")

// Store is the slice of persistence the audio pipeline needs.
type Store interface {
	SaveAudio(ctx context.Context, a council.Audio) error
}

// Task is one ephemeral unit of synthesis work. It lives only on the queue
// and is never persisted.
type Task struct {
	MessageID string
	MeetingID int64
	Text      string // display text; markup is stripped before synthesis
	Speaker   council.Character
	Language  string
}

// Result is the terminal outcome of a task, delivered exactly once and in
// per-meeting submission order.
type Result struct {
	MessageID string
	MeetingID int64
	Audio     []byte
	Sentences []council.Sentence
	Err       error
}

// System runs the synthesis pipeline: normalize, substitute pronunciations,
// call the provider through the retry policy, merge chunks, restore captions,
// persist, publish.
type System struct {
	queue     *Queue
	providers map[string]Synthesizer
	pron      *pronounce.Processor
	retry     netretry.Policy
	store     Store
	met       *metrics.Metrics
	log       *slog.Logger
}

// NewSystem wires the pipeline. providers maps provider selector values
// (council.Character.Provider) to synthesizer adapters.
func NewSystem(queue *Queue, providers map[string]Synthesizer, pron *pronounce.Processor, retry netretry.Policy, store Store, met *metrics.Metrics, log *slog.Logger) *System {
	if log == nil {
		log = slog.Default()
	}
	return &System{
		queue:     queue,
		providers: providers,
		pron:      pron,
		retry:     retry,
		store:     store,
		met:       met,
		log:       log.With("component", "audio"),
	}
}

// Queue exposes the underlying queue for lifecycle hooks (Forget) and
// observability (Depth).
func (s *System) Queue() *Queue { return s.queue }

// Forget drops the per-meeting ordering state once a meeting has ended.
func (s *System) Forget(meetingID int64) { s.queue.Forget(meetingID) }

// Submit schedules synthesis for one message. resolve receives the terminal
// Result once all earlier-submitted tasks for the meeting have resolved.
// The context governs the provider calls; disconnected clients must pass a
// context that outlives their connection so in-flight work runs to completion.
func (s *System) Submit(ctx context.Context, task Task, resolve func(Result)) {
	s.queue.Submit(task.MeetingID, func() func() {
		started := time.Now()
		res := s.process(ctx, task)
		status := "ok"
		if res.Err != nil {
			status = "error"
		}
		s.met.ObserveSynthesis(task.Speaker.Provider, status, time.Since(started).Seconds())
		return func() { resolve(res) }
	})
}

func (s *System) process(ctx context.Context, task Task) Result {
	res := Result{MessageID: task.MessageID, MeetingID: task.MeetingID}
	started := time.Now()

	provider, ok := s.providers[task.Speaker.Provider]
	if !ok {
		res.Err = fmt.Errorf("audio: unknown provider %q for speaker %q", task.Speaker.Provider, task.Speaker.ID)
		return res
	}

	// Display markup never reaches a provider.
	text := council.StripMarkup(task.Text)

	var reverse map[string]string
	if provider.PhonemeSensitive() && s.pron != nil {
		text, reverse = s.pron.Apply(text)
	}

	req := Request{
		Text:        text,
		VoiceID:     task.Speaker.VoiceID,
		Language:    task.Language,
		Instruction: task.Speaker.Instruction,
		Temperature: task.Speaker.Temperature,
	}

	var chunks []Chunk
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		chunks, callErr = provider.Synthesize(ctx, req)
		return callErr
	})
	if err != nil {
		s.log.Error("synthesis failed",
			"meeting", task.MeetingID, "message", task.MessageID,
			"provider", task.Speaker.Provider, "err", err)
		res.Err = err
		return res
	}

	merged, sentences, err := MergeChunks(chunks)
	if err != nil {
		res.Err = err
		return res
	}

	if len(reverse) > 0 {
		for i := range sentences {
			sentences[i].Text = pronounce.Restore(sentences[i].Text, reverse)
		}
	}

	record := council.Audio{
		ID:        task.MessageID,
		Date:      time.Now().UTC(),
		MeetingID: task.MeetingID,
		Audio:     merged,
		Sentences: sentences,
	}
	if err := s.store.SaveAudio(ctx, record); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrPersistence, err)
		return res
	}

	s.log.Debug("synthesis complete",
		"meeting", task.MeetingID, "message", task.MessageID,
		"provider", task.Speaker.Provider, "bytes", len(merged),
		"sentences", len(sentences), "took", time.Since(started))

	res.Audio = merged
	res.Sentences = sentences
	return res
}
