package audio

import (
	"context"
	"fmt"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// Request is one synthesis call to a voice provider.
type Request struct {
	Text        string
	VoiceID     string
	Language    string
	Instruction string
	Temperature *float64
}

// Chunk is one provider result. Long inputs may come back as several chunks
// (sentence-chunked wrap-up summaries); Audio is always PCM-16 mono WAV.
// Sentence timings are relative to the chunk and may be absent (zero End) when
// the provider reports no alignment; the merge step reconstructs them.
type Chunk struct {
	Audio     []byte
	Sentences []council.Sentence
}

// Synthesizer is the capability the pipeline needs from a voice provider.
// Implementations live in the synthesis package.
type Synthesizer interface {
	// Synthesize converts text to one or more audio chunks.
	Synthesize(ctx context.Context, req Request) ([]Chunk, error)
	// PhonemeSensitive reports whether the provider benefits from phonetic
	// respelling of hard-to-pronounce phrases.
	PhonemeSensitive() bool
}

// ProviderError is a non-transient synthesis failure. It fails only the task
// that triggered it; the retry policy never retries it.
type ProviderError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("synthesis: %s provider error (status %d): %s", e.Provider, e.Status, e.Detail)
}
