package council

import (
	"regexp"
	"strings"
)

// Display text may carry lightweight markdown emphasis, but synthesized speech
// must never contain markup. StripMarkup runs before any provider-specific
// step in the audio pipeline; the stored display text keeps its markup.

var (
	reHeading    = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	reBlockquote = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	reListMarker = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	reCodeFence  = regexp.MustCompile("(?m)^```[^\n]*$")
	reLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reEmphasis   = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)([^*_~]+?)(\*{1,3}|_{1,3}|~~)`)
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
)

// StripMarkup removes markdown markers and returns plain text.
// The operation is idempotent: stripping already-plain text is a no-op.
func StripMarkup(text string) string {
	s := text
	s = reCodeFence.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reBlockquote.ReplaceAllString(s, "")
	s = reListMarker.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	// Emphasis can nest (***bold italic***); repeat until stable.
	for {
		next := reEmphasis.ReplaceAllString(s, "$2")
		if next == s {
			break
		}
		s = next
	}
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "#", "")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SplitSentences cuts text into caption-sized sentence units. Terminators stay
// attached to their sentence; whitespace-only fragments are dropped.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		boundary := false
		if isSentenceEnd(r) {
			// Group repeated terminators and trailing quotes with the sentence.
			boundary = i+1 >= len(runes) || !(isSentenceEnd(runes[i+1]) || isClosingQuote(runes[i+1]))
		} else if isClosingQuote(r) && i > 0 && isSentenceEnd(runes[i-1]) {
			boundary = true
		}
		if boundary {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isClosingQuote(r rune) bool {
	return r == '"' || r == '”' || r == '\''
}
