// Package wake detects the activation phrase in transcribed text.
package wake

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrEmptyPhrase is returned when the activation phrase is blank.
var ErrEmptyPhrase = errors.New("wake phrase is empty")

// knownAlternates lists common mis-transcriptions per phrase.
var knownAlternates = map[string][]string{
	"watson": {"whatson", "what's on", "watt son", "wadson"},
}

// fillers are stripped from the front of an extracted command, first match only.
var fillers = []string{"um", "uh", "so", "please", "could you", "can you"}

const leadingPunct = " \t\r\n,.!?;:-\"'`~"

// Matcher tests transcripts for a whole-word, case-insensitive activation
// phrase or one of its known alternates. It is immutable and safe to share.
type Matcher struct {
	phrase     string
	primary    *regexp.Regexp
	alternates []*regexp.Regexp
}

// NewMatcher compiles the rules for phrase. extra adds alternates on top of
// the built-in table.
func NewMatcher(phrase string, extra ...string) (*Matcher, error) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return nil, ErrEmptyPhrase
	}
	primary, err := wordRule(p)
	if err != nil {
		return nil, err
	}
	m := &Matcher{phrase: p, primary: primary}
	seen := map[string]bool{p: true}
	for _, alt := range append(append([]string{}, knownAlternates[p]...), extra...) {
		alt = strings.ToLower(strings.TrimSpace(alt))
		if alt == "" || seen[alt] {
			continue
		}
		seen[alt] = true
		re, err := wordRule(alt)
		if err != nil {
			return nil, err
		}
		m.alternates = append(m.alternates, re)
	}
	return m, nil
}

// wordRule matches p on word boundaries, tolerating any run of whitespace
// between its words.
func wordRule(p string) (*regexp.Regexp, error) {
	words := strings.Fields(p)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
}

// Phrase returns the normalized activation phrase.
func (m *Matcher) Phrase() string { return m.phrase }

// IsWake reports whether text contains the phrase or an alternate.
func (m *Matcher) IsWake(text string) bool {
	_, ok := m.span(text)
	return ok
}

// WakePosition returns the character offset of the first match. The primary
// rule is tried before the alternates.
func (m *Matcher) WakePosition(text string) (int, bool) {
	loc, ok := m.span(text)
	if !ok {
		return 0, false
	}
	return utf8.RuneCountInString(text[:loc[0]]), true
}

// ExtractCommand returns the text after the activation phrase with one
// leading filler removed, or false when there is no wake or nothing left.
func (m *Matcher) ExtractCommand(text string) (string, bool) {
	loc, ok := m.span(text)
	if !ok {
		return "", false
	}
	cmd := strings.TrimLeft(strings.TrimSpace(text[loc[1]:]), leadingPunct)
	for _, f := range fillers {
		if len(cmd) < len(f) || !strings.EqualFold(cmd[:len(f)], f) {
			continue
		}
		if len(cmd) > len(f) && isWordByte(cmd[len(f)]) {
			continue
		}
		cmd = strings.TrimLeft(cmd[len(f):], leadingPunct)
		break
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "", false
	}
	return cmd, true
}

func (m *Matcher) span(text string) ([]int, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	if loc := m.primary.FindStringIndex(text); loc != nil {
		return loc, true
	}
	for _, re := range m.alternates {
		if loc := re.FindStringIndex(text); loc != nil {
			return loc, true
		}
	}
	return nil, false
}

func isWordByte(b byte) bool {
	return b == '_' || b == '\'' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
