package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/audio"
)

func TestChunkTextShortInputStaysWhole(t *testing.T) {
	o := &OpenAISpeech{cfg: OpenAISpeechConfig{MaxChunkChars: 100}}
	pieces := o.chunkText("Short. And sweet.")
	if len(pieces) != 1 || pieces[0] != "Short. And sweet." {
		t.Errorf("short input must not be chunked: %#v", pieces)
	}
}

func TestChunkTextGroupsWholeSentences(t *testing.T) {
	o := &OpenAISpeech{cfg: OpenAISpeechConfig{MaxChunkChars: 24}}
	pieces := o.chunkText("One sentence here. Another one here. And a third one.")
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %#v", pieces)
	}
	for _, p := range pieces {
		if !strings.HasSuffix(p, ".") {
			t.Errorf("piece must end on a sentence boundary: %q", p)
		}
		if len([]rune(p)) > 24 && strings.Contains(p, ". ") {
			t.Errorf("piece exceeds the limit with room to split: %q", p)
		}
	}
}

func TestChunkTextOversizedSentence(t *testing.T) {
	o := &OpenAISpeech{cfg: OpenAISpeechConfig{MaxChunkChars: 10}}
	pieces := o.chunkText("This single sentence is far longer than the limit allows.")
	if len(pieces) != 1 {
		t.Errorf("an oversized sentence must stay whole: %#v", pieces)
	}
}

func TestAlignSentences(t *testing.T) {
	text := "Hi there. Bye now."
	n := len([]rune(text))
	starts := make([]float64, n)
	ends := make([]float64, n)
	for i := 0; i < n; i++ {
		starts[i] = float64(i) * 0.1
		ends[i] = float64(i+1) * 0.1
	}

	sentences := alignSentences(text, starts, ends)
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %#v", sentences)
	}
	if sentences[0].Text != "Hi there." || sentences[1].Text != "Bye now." {
		t.Errorf("sentence texts wrong: %#v", sentences)
	}
	if sentences[0].Start != 0 {
		t.Errorf("first sentence should start at 0, got %f", sentences[0].Start)
	}
	if sentences[1].Start <= sentences[0].End-0.2 {
		t.Errorf("second sentence should start after the first: %#v", sentences)
	}
	if sentences[1].End != float64(n)*0.1 {
		t.Errorf("last sentence should end at the final character, got %f", sentences[1].End)
	}
}

func TestAlignSentencesWithoutAlignment(t *testing.T) {
	sentences := alignSentences("One. Two.", nil, nil)
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %#v", sentences)
	}
	for _, s := range sentences {
		if s.Start != 0 || s.End != 0 {
			t.Errorf("untimed sentences must stay at zero for reconstruction: %#v", s)
		}
	}
}

func TestAlignSentencesClampsShortAlignment(t *testing.T) {
	sentences := alignSentences("Hello there.", []float64{0, 0.1}, []float64{0.1, 0.2})
	if len(sentences) != 1 {
		t.Fatalf("expected 1 sentence, got %#v", sentences)
	}
	if sentences[0].End != 0.2 {
		t.Errorf("timing must clamp to the last known character, got %f", sentences[0].End)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	text := "Hello."
	pcm := make([]byte, 3200) // 0.1s of silence at 16kHz

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "k" {
			t.Errorf("missing api key header, got %q", got)
		}
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/voice-1/with-timestamps") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		n := len([]rune(text))
		starts := make([]float64, n)
		ends := make([]float64, n)
		for i := range starts {
			starts[i] = float64(i) * 0.01
			ends[i] = float64(i+1) * 0.01
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString(pcm),
			"alignment": map[string]any{
				"characters":                    strings.Split(text, ""),
				"character_start_times_seconds": starts,
				"character_end_times_seconds":   ends,
			},
		})
	}))
	defer srv.Close()

	e, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := e.Synthesize(context.Background(), audio.Request{Text: text, VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if _, err := audio.Duration(chunks[0].Audio); err != nil {
		t.Errorf("chunk is not a valid WAV: %v", err)
	}
	if len(chunks[0].Sentences) != 1 || chunks[0].Sentences[0].Text != "Hello." {
		t.Errorf("sentence alignment wrong: %#v", chunks[0].Sentences)
	}
}

func TestElevenLabsNon200IsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Synthesize(context.Background(), audio.Request{Text: "x", VoiceID: "v"})
	var perr *audio.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Status != http.StatusNotFound || perr.Provider != ProviderElevenLabs {
		t.Errorf("provider error mislabeled: %+v", perr)
	}
}

func TestOpenAISpeechSynthesize(t *testing.T) {
	wav, err := audio.EncodeWAV(make([]int16, 1600), 16000)
	if err != nil {
		t.Fatal(err)
	}

	var gotBody openaiSpeechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("missing bearer token, got %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	o, err := NewOpenAISpeech(OpenAISpeechConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := o.Synthesize(context.Background(), audio.Request{
		Text: "Hello there.", VoiceID: "sage", Instruction: "speak slowly",
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if gotBody.ResponseFormat != "wav" || gotBody.Voice != "sage" || gotBody.Instructions != "speak slowly" {
		t.Errorf("request body wrong: %+v", gotBody)
	}
	if len(chunks[0].Sentences) != 1 || chunks[0].Sentences[0].End != 0 {
		t.Errorf("sentences must be untimed for reconstruction: %#v", chunks[0].Sentences)
	}
}
