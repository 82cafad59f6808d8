package council

import (
	"reflect"
	"testing"
)

func TestStripMarkup(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Nothing to strip here.", "Nothing to strip here."},
		{"heading", "## A Heading\nBody text.", "A Heading\nBody text."},
		{"emphasis", "This is *important* and **very** much so.", "This is important and very much so."},
		{"nested emphasis", "***Loud and clear***", "Loud and clear"},
		{"link", "See [the agenda](https://example.org/agenda) first.", "See the agenda first."},
		{"list", "- first\n- second\n1. third", "first\nsecond\nthird"},
		{"blockquote", "> quoted wisdom", "quoted wisdom"},
		{"inline code", "run `make lunch` now", "run make lunch now"},
		{"stray hash", "tag #food stays wordless", "tag food stays wordless"},
		{"blank runs", "a\n\n\n\nb", "a\n\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StripMarkup(tc.in)
			if got != tc.want {
				t.Errorf("StripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripMarkupIdempotent(t *testing.T) {
	in := "## Title\nSome *emphasis*, a [link](http://x), and `code`."
	once := StripMarkup(in)
	twice := StripMarkup(once)
	if once != twice {
		t.Errorf("not idempotent: %q vs %q", once, twice)
	}
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"No terminator at all", []string{"No terminator at all"}},
		{"Wait... what", []string{"Wait...", "what"}},
		{"He said \"Stop.\" Then left.", []string{"He said \"Stop.\"", "Then left."}},
		{"", nil},
		{"   ", nil},
	}
	for _, tc := range cases {
		got := SplitSentences(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitSentences(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
