package pronounce

import (
	"strings"
	"testing"
)

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor([]Entry{
		{Phrase: "quinoa", Phonetic: "keen-wah"},
		{Phrase: "worcestershire", Phonetic: "wuster-sher"},
		{Phrase: "worcestershire sauce", Phonetic: "wuster-sher soss"},
		{Phrase: "mfn.", Phonetic: "em eff en"},
	})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func TestApplySubstitutes(t *testing.T) {
	p := testProcessor(t)
	out, reverse := p.Apply("I love quinoa salads.")
	if out != "I love keen-wah salads." {
		t.Errorf("unexpected output: %q", out)
	}
	if reverse["keen-wah"] != "quinoa" {
		t.Errorf("reversal map missing entry: %#v", reverse)
	}
}

func TestApplyLongestPhraseWins(t *testing.T) {
	p := testProcessor(t)
	out, _ := p.Apply("add worcestershire sauce now")
	if out != "add wuster-sher soss now" {
		t.Errorf("longer phrase should win, got %q", out)
	}

	out, _ = p.Apply("plain worcestershire here")
	if out != "plain wuster-sher here" {
		t.Errorf("shorter phrase alone, got %q", out)
	}
}

func TestApplyCaseInsensitiveKeepsCasingInReverse(t *testing.T) {
	p := testProcessor(t)
	out, reverse := p.Apply("Quinoa is great")
	if !strings.HasPrefix(out, "keen-wah") {
		t.Errorf("case-insensitive match failed: %q", out)
	}
	if reverse["keen-wah"] != "Quinoa" {
		t.Errorf("reversal must keep the casing as it appeared, got %#v", reverse)
	}
}

func TestApplyWordBoundaries(t *testing.T) {
	p := testProcessor(t)
	out, reverse := p.Apply("quinoamania is not a word")
	if out != "quinoamania is not a word" {
		t.Errorf("substring must not match inside a word: %q", out)
	}
	if len(reverse) != 0 {
		t.Errorf("no reversal entries expected, got %#v", reverse)
	}
}

func TestApplyAbbreviationWithPunctuation(t *testing.T) {
	p := testProcessor(t)
	out, _ := p.Apply("the mfn. clause applies")
	if out != "the em eff en clause applies" {
		t.Errorf("abbreviation should match, got %q", out)
	}
}

func TestApplyNoMatches(t *testing.T) {
	p := testProcessor(t)
	out, reverse := p.Apply("nothing special here")
	if out != "nothing special here" {
		t.Errorf("text must pass through unchanged: %q", out)
	}
	if len(reverse) != 0 {
		t.Errorf("reversal map must be empty, got %#v", reverse)
	}
}

func TestRestore(t *testing.T) {
	p := testProcessor(t)
	substituted, reverse := p.Apply("Try the quinoa with worcestershire sauce.")
	restored := Restore(substituted, reverse)
	if restored != "Try the quinoa with worcestershire sauce." {
		t.Errorf("restore must round-trip the caption, got %q", restored)
	}
}

func TestRestoreLongestFormFirst(t *testing.T) {
	// One phonetic form contains the other; the longer one must restore whole
	// no matter how the map iterates.
	reverse := map[string]string{
		"wuster-sher":      "worcestershire",
		"wuster-sher soss": "worcestershire sauce",
	}
	for i := 0; i < 50; i++ {
		got := Restore("Pass the wuster-sher soss, please.", reverse)
		if got != "Pass the worcestershire sauce, please." {
			t.Fatalf("restore split the longer form: %q", got)
		}
	}
}

func TestRestoreCaseInsensitive(t *testing.T) {
	reverse := map[string]string{"keen-wah": "quinoa"}
	if got := Restore("KEEN-WAH bowls", reverse); got != "quinoa bowls" {
		t.Errorf("case-insensitive restore failed: %q", got)
	}
}

func TestLoadEmbeddedTable(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out, _ := p.Apply("quinoa")
	if out == "quinoa" {
		t.Error("embedded table should cover quinoa")
	}
}

func TestNewProcessorRejectsBadEntries(t *testing.T) {
	if _, err := NewProcessor(nil); err == nil {
		t.Error("expected error for empty table")
	}
	if _, err := NewProcessor([]Entry{{Phrase: "", Phonetic: "x"}}); err == nil {
		t.Error("expected error for blank phrase")
	}
}
