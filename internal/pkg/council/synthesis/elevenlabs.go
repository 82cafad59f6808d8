// Package synthesis contains the voice-provider adapters behind the
// audio.Synthesizer capability. The provider selector on a character picks
// one of the adapters registered here.
package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/audio"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// Provider selector values carried on council.Character.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
)

const elevenSampleRate = 16000

// ElevenLabsConfig configures the ElevenLabs adapter.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string // default https://api.elevenlabs.io
	ModelID string // default eleven_multilingual_v2
	Timeout time.Duration
}

// ElevenLabs synthesizes speech with character-level alignment, which the
// pipeline turns into per-sentence caption timings. The provider renders text
// phonetically, so it is phoneme sensitive: pronunciation substitution applies.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	log    *slog.Logger
}

// NewElevenLabs constructs the adapter.
func NewElevenLabs(cfg ElevenLabsConfig, log *slog.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synthesis: elevenlabs api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("provider", ProviderElevenLabs),
	}, nil
}

var _ audio.Synthesizer = (*ElevenLabs)(nil)

// PhonemeSensitive reports true: respelled phrases improve this provider.
func (e *ElevenLabs) PhonemeSensitive() bool { return true }

type elevenRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	LanguageCode  string             `json:"language_code,omitempty"`
	VoiceSettings *elevenVoiceTuning `json:"voice_settings,omitempty"`
}

type elevenVoiceTuning struct {
	Style float64 `json:"style"`
}

type elevenResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   struct {
		Characters []string  `json:"characters"`
		StartTimes []float64 `json:"character_start_times_seconds"`
		EndTimes   []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

// Synthesize renders the whole text as a single chunk with aligned sentence
// timings derived from the character alignment.
func (e *ElevenLabs) Synthesize(ctx context.Context, req audio.Request) ([]audio.Chunk, error) {
	body := elevenRequest{
		Text:         req.Text,
		ModelID:      e.cfg.ModelID,
		LanguageCode: req.Language,
	}
	if req.Temperature != nil {
		body.VoiceSettings = &elevenVoiceTuning{Style: *req.Temperature}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=pcm_%d",
		e.cfg.BaseURL, url.PathEscape(req.VoiceID), elevenSampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &audio.ProviderError{Provider: ProviderElevenLabs, Status: resp.StatusCode, Detail: string(detail)}
	}

	var out elevenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	pcm, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("synthesis: decode elevenlabs audio: %w", err)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	wav, err := audio.EncodeWAV(samples, elevenSampleRate)
	if err != nil {
		return nil, err
	}

	sentences := alignSentences(req.Text, out.Alignment.StartTimes, out.Alignment.EndTimes)
	return []audio.Chunk{{Audio: wav, Sentences: sentences}}, nil
}

// alignSentences maps character-level alignment onto sentence units of the
// synthesized text. When the alignment is shorter than the text (provider
// quirk), timings are clamped to the last known character.
func alignSentences(text string, starts, ends []float64) []council.Sentence {
	parts := council.SplitSentences(text)
	if len(parts) == 0 {
		return nil
	}
	if len(starts) == 0 || len(ends) == 0 {
		// No alignment returned; let the merge step reconstruct timings.
		out := make([]council.Sentence, len(parts))
		for i, p := range parts {
			out[i] = council.Sentence{Text: p}
		}
		return out
	}

	runes := []rune(text)
	out := make([]council.Sentence, 0, len(parts))
	cursor := 0
	for _, part := range parts {
		begin := indexOfRunes(runes, []rune(part), cursor)
		if begin < 0 {
			begin = cursor
		}
		end := begin + len([]rune(part)) - 1
		cursor = end + 1
		out = append(out, council.Sentence{
			Text:  part,
			Start: timeAt(starts, begin),
			End:   timeAt(ends, end),
		})
	}
	return out
}

func indexOfRunes(haystack, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func timeAt(times []float64, idx int) float64 {
	if len(times) == 0 {
		return 0
	}
	if idx >= len(times) {
		idx = len(times) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return times[idx]
}
