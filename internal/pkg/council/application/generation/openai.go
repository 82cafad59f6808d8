package generation

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

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// OpenAIConfig configures the chat-completions adapter. BaseURL may point at
// any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default https://api.openai.com
	Model   string // default gpt-4o-mini
	Timeout time.Duration
}

// OpenAIGenerator implements Generator over the chat-completions API.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
	log    *slog.Logger
}

// NewOpenAIGenerator constructs the adapter.
func NewOpenAIGenerator(cfg OpenAIConfig, log *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation: openai api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("component", "generation"),
	}, nil
}

var _ Generator = (*OpenAIGenerator)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NextUtterance produces one utterance for the requested speaker.
func (g *OpenAIGenerator) NextUtterance(ctx context.Context, req Request) (string, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt(req)}}
	for _, m := range req.History {
		role := "assistant"
		if m.Kind == council.MessageKindHuman {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Speaker + ": " + m.Text})
	}

	body := chatRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: req.Speaker.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &ProviderError{Status: resp.StatusCode, Detail: string(detail)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Status: resp.StatusCode, Detail: "empty completion"}
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	// Models sometimes echo the speaker prefix back; drop it.
	text = strings.TrimPrefix(text, req.Speaker.Name+":")
	return strings.TrimSpace(text), nil
}

func systemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in a panel conversation about %q.", req.Speaker.Name, req.Topic)
	if req.Speaker.Instruction != "" {
		b.WriteString(" " + req.Speaker.Instruction)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, " Answer in language %q.", req.Language)
	}
	switch req.Kind {
	case council.MessageKindRaiseHand:
		fmt.Fprintf(&b, " As chair, briefly invite %s, who raised their hand, to speak next.", req.HumanName)
	case council.MessageKindSummary:
		b.WriteString(" As chair, close the meeting with a short summary of the conversation.")
	}
	if req.MaxChars > 0 {
		fmt.Fprintf(&b, " Keep the answer under %d characters.", req.MaxChars)
	}
	return b.String()
}
