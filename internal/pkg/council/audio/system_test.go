package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/netretry"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/pronounce"
)

type fakeSynth struct {
	mu       sync.Mutex
	requests []Request
	phonemes bool
	err      error
}

func (f *fakeSynth) Synthesize(ctx context.Context, req Request) ([]Chunk, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	data, err := EncodeWAV(make([]int16, 1600), 16000)
	if err != nil {
		return nil, err
	}
	return []Chunk{{Audio: data, Sentences: []council.Sentence{{Text: req.Text}}}}, nil
}

func (f *fakeSynth) PhonemeSensitive() bool { return f.phonemes }

func (f *fakeSynth) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeStore struct {
	mu    sync.Mutex
	saved []council.Audio
	err   error
}

func (f *fakeStore) SaveAudio(ctx context.Context, a council.Audio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, a)
	return nil
}

func newTestSystem(t *testing.T, synth Synthesizer, store Store) *System {
	t.Helper()
	pron, err := pronounce.NewProcessor([]pronounce.Entry{
		{Phrase: "quinoa", Phonetic: "keen-wah"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewSystem(
		NewQueue(2, nil),
		map[string]Synthesizer{"fake": synth},
		pron,
		netretry.NewPolicy(1, time.Millisecond),
		store,
		nil,
		nil,
	)
}

func submitAndWait(t *testing.T, s *System, task Task) Result {
	t.Helper()
	done := make(chan Result, 1)
	s.Submit(context.Background(), task, func(res Result) { done <- res })
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("synthesis never resolved")
		return Result{}
	}
}

func TestSystemStripsMarkupBeforeProvider(t *testing.T) {
	synth := &fakeSynth{}
	store := &fakeStore{}
	s := newTestSystem(t, synth, store)

	res := submitAndWait(t, s, Task{
		MessageID: "m1", MeetingID: 1,
		Text:    "## Opening\nWelcome *everyone*.",
		Speaker: council.Character{ID: "chair", Provider: "fake", VoiceID: "v"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got := synth.lastRequest().Text; strings.ContainsAny(got, "#*") {
		t.Errorf("markup reached the provider: %q", got)
	}
}

func TestSystemPronunciationRoundTrip(t *testing.T) {
	synth := &fakeSynth{phonemes: true}
	store := &fakeStore{}
	s := newTestSystem(t, synth, store)

	res := submitAndWait(t, s, Task{
		MessageID: "m1", MeetingID: 1,
		Text:    "I enjoy quinoa.",
		Speaker: council.Character{ID: "chair", Provider: "fake", VoiceID: "v"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got := synth.lastRequest().Text; !strings.Contains(got, "keen-wah") {
		t.Errorf("provider should receive the phonetic form, got %q", got)
	}
	if len(res.Sentences) == 0 || strings.Contains(res.Sentences[0].Text, "keen-wah") {
		t.Errorf("captions must show the original word: %#v", res.Sentences)
	}
}

func TestSystemSkipsPronunciationForInsensitiveProviders(t *testing.T) {
	synth := &fakeSynth{phonemes: false}
	s := newTestSystem(t, synth, &fakeStore{})

	res := submitAndWait(t, s, Task{
		MessageID: "m1", MeetingID: 1,
		Text:    "I enjoy quinoa.",
		Speaker: council.Character{ID: "chair", Provider: "fake", VoiceID: "v"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got := synth.lastRequest().Text; strings.Contains(got, "keen-wah") {
		t.Errorf("insensitive provider must get the plain text, got %q", got)
	}
}

func TestSystemUnknownProvider(t *testing.T) {
	s := newTestSystem(t, &fakeSynth{}, &fakeStore{})
	res := submitAndWait(t, s, Task{
		MessageID: "m1", MeetingID: 1, Text: "hi",
		Speaker: council.Character{ID: "x", Provider: "nope"},
	})
	if res.Err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestSystemPersistenceFailureIsTyped(t *testing.T) {
	s := newTestSystem(t, &fakeSynth{}, &fakeStore{err: errors.New("disk gone")})
	res := submitAndWait(t, s, Task{
		MessageID: "m1", MeetingID: 1, Text: "hi",
		Speaker: council.Character{ID: "x", Provider: "fake"},
	})
	if !errors.Is(res.Err, ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", res.Err)
	}
}

func TestSystemStoresAudioRecord(t *testing.T) {
	store := &fakeStore{}
	s := newTestSystem(t, &fakeSynth{}, store)

	res := submitAndWait(t, s, Task{
		MessageID: "m7", MeetingID: 3, Text: "hello there",
		Speaker: council.Character{ID: "x", Provider: "fake"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.saved))
	}
	rec := store.saved[0]
	if rec.ID != "m7" || rec.MeetingID != 3 {
		t.Errorf("record mislabeled: %+v", rec)
	}
	if len(rec.Audio) == 0 {
		t.Error("record missing audio payload")
	}
}
