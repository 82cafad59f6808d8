package audio

import (
	"errors"
	"fmt"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// MergeChunks joins provider chunks into one contiguous WAV track and rebuilds
// the caption timeline. Each chunk's offset is the accumulated duration of all
// prior chunks, probed from container metadata of the actual audio. Chunks
// without provider-reported timings get sentence boundaries distributed
// proportionally to sentence length within the chunk.
func MergeChunks(chunks []Chunk) ([]byte, []council.Sentence, error) {
	if len(chunks) == 0 {
		return nil, nil, errors.New("audio: nothing to merge")
	}

	if len(chunks) == 1 {
		d, err := Duration(chunks[0].Audio)
		if err != nil {
			return nil, nil, err
		}
		return chunks[0].Audio, placeSentences(chunks[0].Sentences, 0, d), nil
	}

	var (
		merged     []int16
		sampleRate int
		offset     float64
		sentences  []council.Sentence
	)
	for i, chunk := range chunks {
		d, err := Duration(chunk.Audio)
		if err != nil {
			return nil, nil, fmt.Errorf("audio: chunk %d: %w", i, err)
		}
		samples, rate, err := DecodeWAV(chunk.Audio)
		if err != nil {
			return nil, nil, fmt.Errorf("audio: chunk %d: %w", i, err)
		}
		if sampleRate == 0 {
			sampleRate = rate
		} else if rate != sampleRate {
			return nil, nil, fmt.Errorf("audio: chunk %d sample rate %d differs from %d", i, rate, sampleRate)
		}
		merged = append(merged, samples...)
		sentences = append(sentences, placeSentences(chunk.Sentences, offset, d)...)
		offset += d
	}

	out, err := EncodeWAV(merged, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	return out, sentences, nil
}

// placeSentences shifts provider-reported timings by offset, or reconstructs
// them proportionally to sentence rune length when the provider gave none.
func placeSentences(in []council.Sentence, offset, duration float64) []council.Sentence {
	if len(in) == 0 {
		return nil
	}
	out := make([]council.Sentence, len(in))

	timed := false
	for _, s := range in {
		if s.End > 0 {
			timed = true
			break
		}
	}

	if timed {
		for i, s := range in {
			out[i] = council.Sentence{Text: s.Text, Start: offset + s.Start, End: offset + s.End}
		}
		return out
	}

	total := 0
	for _, s := range in {
		total += len([]rune(s.Text))
	}
	if total == 0 {
		total = len(in)
	}
	cursor := offset
	consumed := 0
	for i, s := range in {
		consumed += len([]rune(s.Text))
		end := offset + duration*float64(consumed)/float64(total)
		out[i] = council.Sentence{Text: s.Text, Start: cursor, End: end}
		cursor = end
	}
	// Snap the tail to the probed duration to avoid float drift.
	out[len(out)-1].End = offset + duration
	return out
}
