// Package pronounce rewrites phrases that speech-synthesis providers tend to
// mispronounce into phonetic respellings, and restores the original words in
// captions afterwards so phonetic spellings are never shown to the audience.
package pronounce

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var tableYAML []byte

// Entry maps one phrase to its phonetic respelling.
type Entry struct {
	Phrase   string `yaml:"phrase"`
	Phonetic string `yaml:"phonetic"`
}

// Processor performs longest-match-first phrase substitution with a reversal
// map. Compile once, share freely: a Processor is immutable after construction.
type Processor struct {
	pattern  *regexp.Regexp
	phonetic map[string]string // lowercased phrase -> phonetic form
}

var (
	loadOnce sync.Once
	loaded   *Processor
	loadErr  error
)

// Load parses the embedded table and compiles the processor. The table is
// loaded once per process; subsequent calls return the cached instance.
func Load() (*Processor, error) {
	loadOnce.Do(func() {
		var doc struct {
			Phrases []Entry `yaml:"phrases"`
		}
		if err := yaml.Unmarshal(tableYAML, &doc); err != nil {
			loadErr = fmt.Errorf("pronounce: parse table: %w", err)
			return
		}
		loaded, loadErr = NewProcessor(doc.Phrases)
	})
	return loaded, loadErr
}

// NewProcessor compiles a processor for the given entries.
// Matching is case-insensitive. A longer phrase always wins over any shorter
// phrase it contains, so substitution never splits a known phrase.
func NewProcessor(entries []Entry) (*Processor, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("pronounce: empty table")
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Phrase) > len(sorted[j].Phrase)
	})

	phonetic := make(map[string]string, len(sorted))
	alts := make([]string, 0, len(sorted))
	for _, e := range sorted {
		phrase := strings.TrimSpace(e.Phrase)
		if phrase == "" || e.Phonetic == "" {
			return nil, fmt.Errorf("pronounce: invalid entry %q -> %q", e.Phrase, e.Phonetic)
		}
		phonetic[strings.ToLower(phrase)] = e.Phonetic
		alts = append(alts, anchored(phrase))
	}

	// One combined alternation, longest phrase first: Go regexp alternation is
	// leftmost-first, so each text position is substituted at most once and
	// always by the longest phrase that matches there.
	pattern, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("pronounce: compile: %w", err)
	}

	return &Processor{pattern: pattern, phonetic: phonetic}, nil
}

// anchored quotes the phrase and applies word-boundary anchors only on the
// sides that begin/end with a word character, so punctuation-bearing phrases
// (abbreviations like "mfn.") still match.
func anchored(phrase string) string {
	quoted := regexp.QuoteMeta(phrase)
	runes := []rune(phrase)
	if isWordRune(runes[0]) {
		quoted = `\b` + quoted
	}
	if isWordRune(runes[len(runes)-1]) {
		quoted += `\b`
	}
	return quoted
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Apply substitutes known phrases in text and returns the rewritten text plus
// the reversal map (phonetic form -> original word as it appeared). Phrases
// absent from the text contribute no reversal entry.
func (p *Processor) Apply(text string) (string, map[string]string) {
	reverse := make(map[string]string)
	out := p.pattern.ReplaceAllStringFunc(text, func(match string) string {
		repl, ok := p.phonetic[strings.ToLower(match)]
		if !ok {
			return match
		}
		reverse[repl] = match
		return repl
	})
	return out, reverse
}

// Restore rewrites caption text so phonetic forms show the original words
// again. Matching is case-insensitive because providers may echo the text with
// altered casing. Longer phonetic forms restore first, so a form that contains
// a shorter one is never split by it.
func Restore(text string, reverse map[string]string) string {
	if len(reverse) == 0 {
		return text
	}
	keys := make([]string, 0, len(reverse))
	for repl := range reverse {
		keys = append(keys, repl)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	out := text
	for _, repl := range keys {
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(repl))
		if err != nil {
			continue
		}
		out = re.ReplaceAllLiteralString(out, reverse[repl])
	}
	return out
}
