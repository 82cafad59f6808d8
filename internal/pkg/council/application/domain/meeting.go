package council

import (
	"errors"
	"strings"
	"time"
)

// MessageKind tags the origin of a conversation entry.
type MessageKind string

const (
	MessageKindUtterance MessageKind = "utterance"  // a character speaking in turn
	MessageKindHuman     MessageKind = "human"      // a human participant message
	MessageKindRaiseHand MessageKind = "raise_hand" // the chair inviting a raised hand
	MessageKindInjected  MessageKind = "injected"   // operator-injected text
	MessageKindSummary   MessageKind = "summary"    // the wrap-up closing statement
)

// Sentence is one caption unit aligned to synthesized audio playback.
// Start and End are offsets in seconds from the beginning of the track.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Message is one append-only entry in a meeting conversation.
// ID correlates the message with its Audio record. Text is the display text
// and may retain markdown emphasis; synthesis always receives a stripped copy.
type Message struct {
	ID         string      `json:"id"`
	Kind       MessageKind `json:"type"`
	Date       time.Time   `json:"date"`
	Speaker    string      `json:"speaker"`
	Text       string      `json:"text"`
	Pretrimmed string      `json:"pretrimmed,omitempty"` // original text before length truncation
	Trimmed    string      `json:"trimmed,omitempty"`    // the part cut off by truncation
	Sentences  []Sentence  `json:"sentences,omitempty"`  // present once audio exists
}

// Character is a speaking identity with an assigned voice profile.
// Immutable within a meeting: the roster is snapshotted into Options at start.
type Character struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	VoiceID     string   `json:"voice_id"`
	Provider    string   `json:"provider"` // one of synthesis.Providers
	Locale      string   `json:"locale,omitempty"`
	Instruction string   `json:"instruction,omitempty"` // delivery instruction for instructable voices
	Temperature *float64 `json:"temperature,omitempty"`
}

// Options is the immutable configuration snapshot captured at meeting creation.
// Later global config changes never retroactively affect an in-flight meeting.
// Extra is the single open-extension field; everything else is strict schema.
type Options struct {
	Topic           string         `json:"topic"`
	Characters      []Character    `json:"characters"`
	Language        string         `json:"language"`
	MaxTurns        int            `json:"max_turns"`
	SummaryMaxChars int            `json:"summary_max_chars"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Meeting is one orchestrated conversation session. The ID is allocated
// exactly once from an atomic counter and never reused. The conversation is
// append-only and mutated only by the owning manager instance.
type Meeting struct {
	ID           int64     `json:"_id"`
	Date         time.Time `json:"date"`
	Conversation []Message `json:"conversation"`
	Options      Options   `json:"options"`
	AudioIDs     []string  `json:"audio"`
	Summary      string    `json:"summary,omitempty"`
}

// Audio is the synthesized speech for one message, created once after merging
// and never mutated thereafter.
type Audio struct {
	ID        string     `json:"_id"` // equals the message ID
	Date      time.Time  `json:"date"`
	MeetingID int64      `json:"meeting_id"`
	Audio     []byte     `json:"audio"`
	Sentences []Sentence `json:"sentences"`
}

// Chair returns the character that moderates the meeting.
// The first roster entry chairs: it invites raised hands and speaks the wrap-up.
func (o Options) Chair() (Character, error) {
	if len(o.Characters) == 0 {
		return Character{}, errors.New("meeting has no characters")
	}
	return o.Characters[0], nil
}

// CharacterByID looks a character up in the roster snapshot.
func (o Options) CharacterByID(id string) (Character, bool) {
	for _, c := range o.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}

// NewMessage validates and normalizes a message before it is appended.
func NewMessage(m Message) (*Message, error) {
	if m.ID == "" {
		return nil, errors.New("message id is required")
	}
	if m.Kind == "" {
		return nil, errors.New("message kind is required")
	}
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return nil, errors.New("message text is required")
	}
	if m.Date.IsZero() {
		m.Date = time.Now().UTC()
	}
	return &m, nil
}

// Truncate enforces a length envelope on the message text, keeping the
// bookkeeping fields so the client can show what was cut. Truncation happens
// on rune boundaries; a zero or negative limit leaves the text untouched.
func (m *Message) Truncate(maxChars int) {
	if maxChars <= 0 {
		return
	}
	runes := []rune(m.Text)
	if len(runes) <= maxChars {
		return
	}
	m.Pretrimmed = m.Text
	m.Trimmed = string(runes[maxChars:])
	m.Text = string(runes[:maxChars])
}
