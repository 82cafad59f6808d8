package council

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessageValidation(t *testing.T) {
	if _, err := NewMessage(Message{Kind: MessageKindHuman, Text: "hi"}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := NewMessage(Message{ID: "m1", Text: "hi"}); err == nil {
		t.Error("expected error for missing kind")
	}
	if _, err := NewMessage(Message{ID: "m1", Kind: MessageKindHuman, Text: "   "}); err == nil {
		t.Error("expected error for blank text")
	}

	msg, err := NewMessage(Message{ID: "m1", Kind: MessageKindHuman, Text: "  hello  "})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("expected trimmed text, got %q", msg.Text)
	}
}

func TestNewMessageDates(t *testing.T) {
	msg, err := NewMessage(Message{ID: "m1", Kind: MessageKindHuman, Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Date.IsZero() {
		t.Error("a message without a date must be stamped")
	}

	sent := time.Date(2026, 8, 14, 12, 30, 0, 0, time.UTC)
	msg, err = NewMessage(Message{ID: "m2", Kind: MessageKindInjected, Text: "note", Date: sent})
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Date.Equal(sent) {
		t.Errorf("a provided date must be kept, got %v", msg.Date)
	}
}

func TestTruncateKeepsBookkeeping(t *testing.T) {
	msg := Message{ID: "m1", Kind: MessageKindSummary, Text: "hello world"}
	msg.Truncate(5)

	if msg.Text != "hello" {
		t.Errorf("expected text %q, got %q", "hello", msg.Text)
	}
	if msg.Pretrimmed != "hello world" {
		t.Errorf("expected pretrimmed to keep the original, got %q", msg.Pretrimmed)
	}
	if msg.Trimmed != " world" {
		t.Errorf("expected trimmed %q, got %q", " world", msg.Trimmed)
	}
}

func TestTruncateRuneBoundaries(t *testing.T) {
	msg := Message{ID: "m1", Kind: MessageKindSummary, Text: "åäö räksmörgås"}
	msg.Truncate(3)
	if msg.Text != "åäö" {
		t.Errorf("expected rune-safe cut, got %q", msg.Text)
	}
}

func TestTruncateNoop(t *testing.T) {
	msg := Message{ID: "m1", Kind: MessageKindSummary, Text: "short"}
	msg.Truncate(0)
	if msg.Pretrimmed != "" || msg.Text != "short" {
		t.Error("zero limit must not touch the message")
	}
	msg.Truncate(100)
	if msg.Pretrimmed != "" || msg.Text != "short" {
		t.Error("text within the limit must not be touched")
	}
}

func TestChairAndLookup(t *testing.T) {
	opts := Options{Characters: []Character{
		{ID: "water", Name: "Water"},
		{ID: "potato", Name: "Potato"},
	}}

	chair, err := opts.Chair()
	if err != nil {
		t.Fatalf("Chair failed: %v", err)
	}
	if chair.ID != "water" {
		t.Errorf("expected first roster entry to chair, got %q", chair.ID)
	}

	if _, ok := opts.CharacterByID("potato"); !ok {
		t.Error("expected to find potato")
	}
	if _, ok := opts.CharacterByID("basil"); ok {
		t.Error("unexpected hit for unknown character")
	}

	if _, err := (Options{}).Chair(); err == nil {
		t.Error("expected error for empty roster")
	}
}

func TestTruncateLongSummary(t *testing.T) {
	long := strings.Repeat("a", 2000)
	msg := Message{ID: "m1", Kind: MessageKindSummary, Text: long}
	msg.Truncate(1200)
	if len(msg.Text) != 1200 {
		t.Errorf("expected 1200 chars, got %d", len(msg.Text))
	}
	if len(msg.Trimmed) != 800 {
		t.Errorf("expected 800 trimmed chars, got %d", len(msg.Trimmed))
	}
}
