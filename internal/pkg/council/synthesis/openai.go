package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/audio"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// OpenAISpeechConfig configures the OpenAI speech adapter.
type OpenAISpeechConfig struct {
	APIKey        string
	BaseURL       string // default https://api.openai.com
	Model         string // default gpt-4o-mini-tts
	MaxChunkChars int    // inputs longer than this are sentence-chunked
	Timeout       time.Duration
}

// OpenAISpeech synthesizes via the /v1/audio/speech endpoint. The endpoint
// returns no alignment, so sentence timings are reconstructed by the merge
// step. Long inputs (wrap-up summaries) are sentence-chunked and merged.
type OpenAISpeech struct {
	cfg    OpenAISpeechConfig
	client *http.Client
	log    *slog.Logger
}

// NewOpenAISpeech constructs the adapter.
func NewOpenAISpeech(cfg OpenAISpeechConfig, log *slog.Logger) (*OpenAISpeech, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synthesis: openai api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 600
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAISpeech{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("provider", ProviderOpenAI),
	}, nil
}

var _ audio.Synthesizer = (*OpenAISpeech)(nil)

// PhonemeSensitive reports false: this provider takes delivery instructions
// instead of phonetic respelling, and respelled words would leak into nothing
// useful here.
func (o *OpenAISpeech) PhonemeSensitive() bool { return false }

type openaiSpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Instructions   string  `json:"instructions,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize renders the text, splitting long inputs into per-sentence-group
// chunks so wrap-up summaries stay under the provider input limit.
func (o *OpenAISpeech) Synthesize(ctx context.Context, req audio.Request) ([]audio.Chunk, error) {
	pieces := o.chunkText(req.Text)
	chunks := make([]audio.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		wav, err := o.speak(ctx, piece, req)
		if err != nil {
			return nil, err
		}
		parts := council.SplitSentences(piece)
		sentences := make([]council.Sentence, len(parts))
		for i, p := range parts {
			sentences[i] = council.Sentence{Text: p}
		}
		chunks = append(chunks, audio.Chunk{Audio: wav, Sentences: sentences})
	}
	return chunks, nil
}

func (o *OpenAISpeech) speak(ctx context.Context, text string, req audio.Request) ([]byte, error) {
	body := openaiSpeechRequest{
		Model:          o.cfg.Model,
		Input:          text,
		Voice:          req.VoiceID,
		ResponseFormat: "wav",
		Instructions:   req.Instruction,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.cfg.BaseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &audio.ProviderError{Provider: ProviderOpenAI, Status: resp.StatusCode, Detail: string(detail)}
	}
	return io.ReadAll(resp.Body)
}

// chunkText groups whole sentences into pieces no longer than MaxChunkChars.
// A single oversized sentence becomes its own piece rather than being split
// mid-sentence.
func (o *OpenAISpeech) chunkText(text string) []string {
	if len([]rune(text)) <= o.cfg.MaxChunkChars {
		return []string{text}
	}
	var pieces []string
	var b strings.Builder
	size := 0
	for _, sentence := range council.SplitSentences(text) {
		n := len([]rune(sentence))
		if size > 0 && size+n+1 > o.cfg.MaxChunkChars {
			pieces = append(pieces, b.String())
			b.Reset()
			size = 0
		}
		if size > 0 {
			b.WriteByte(' ')
			size++
		}
		b.WriteString(sentence)
		size += n
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}
