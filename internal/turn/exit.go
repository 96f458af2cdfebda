package turn

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultExitPhrases end the session when heard.
var DefaultExitPhrases = []string{"exit", "stop", "quit", "goodbye"}

// Exit match modes accepted by [NewExitMatcher].
const (
	MatchSubstring = "substring"
	MatchWord      = "word"
	MatchPhonetic  = "phonetic"
)

// ExitMatcher decides whether a transcript asks to end the session.
type ExitMatcher interface {
	// Match returns the phrase that matched, if any.
	Match(text string) (phrase string, ok bool)
}

// NewExitMatcher builds the matcher for mode. An empty mode selects
// [MatchSubstring]; nil phrases select [DefaultExitPhrases].
func NewExitMatcher(mode string, phrases []string) (ExitMatcher, error) {
	if phrases == nil {
		phrases = DefaultExitPhrases
	}
	switch mode {
	case "", MatchSubstring:
		return NewSubstringMatcher(phrases...), nil
	case MatchWord:
		return NewWordMatcher(phrases...), nil
	case MatchPhonetic:
		return NewPhoneticMatcher(phrases), nil
	default:
		return nil, fmt.Errorf("turn: unknown exit match mode %q", mode)
	}
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SubstringMatcher matches when a phrase occurs anywhere in the lowercased
// text, so "stop" also matches "stopwatch".
type SubstringMatcher struct {
	phrases []string
}

// NewSubstringMatcher returns a case-insensitive substring matcher.
func NewSubstringMatcher(phrases ...string) *SubstringMatcher {
	return &SubstringMatcher{phrases: normalizePhrases(phrases)}
}

// Match implements [ExitMatcher].
func (m *SubstringMatcher) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// words splits text into lowercase letter/digit runs.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// WordMatcher matches whole words only. Multi-word phrases must appear as
// consecutive words.
type WordMatcher struct {
	phrases [][]string
}

// NewWordMatcher returns a case-insensitive whole-word matcher.
func NewWordMatcher(phrases ...string) *WordMatcher {
	m := &WordMatcher{}
	for _, p := range normalizePhrases(phrases) {
		if w := words(p); len(w) > 0 {
			m.phrases = append(m.phrases, w)
		}
	}
	return m
}

// Match implements [ExitMatcher].
func (m *WordMatcher) Match(text string) (string, bool) {
	tokens := words(text)
	for _, p := range m.phrases {
		if containsRun(tokens, p) {
			return strings.Join(p, " "), true
		}
	}
	return "", false
}

func containsRun(tokens, run []string) bool {
	for i := 0; i+len(run) <= len(tokens); i++ {
		ok := true
		for j := range run {
			if tokens[i+j] != run[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

const defaultPhoneticThreshold = 0.85

// PhoneticMatcher tolerates transcription slips such as "quite" for "quit".
// A word sequence matches a phrase when their Double Metaphone codes overlap
// and their Jaro-Winkler similarity reaches the threshold.
type PhoneticMatcher struct {
	phrases   []phoneticPhrase
	threshold float64
}

type phoneticPhrase struct {
	text  string
	words int
	codes map[string]struct{}
}

// PhoneticOption configures a [PhoneticMatcher].
type PhoneticOption func(*PhoneticMatcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score. Default: 0.85.
func WithPhoneticThreshold(t float64) PhoneticOption {
	return func(m *PhoneticMatcher) { m.threshold = t }
}

// NewPhoneticMatcher returns a matcher for phrases.
func NewPhoneticMatcher(phrases []string, opts ...PhoneticOption) *PhoneticMatcher {
	m := &PhoneticMatcher{threshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(m)
	}
	for _, p := range normalizePhrases(phrases) {
		w := words(p)
		if len(w) == 0 {
			continue
		}
		m.phrases = append(m.phrases, phoneticPhrase{
			text:  strings.Join(w, " "),
			words: len(w),
			codes: metaphoneCodes(w),
		})
	}
	return m
}

// Match implements [ExitMatcher].
func (m *PhoneticMatcher) Match(text string) (string, bool) {
	tokens := words(text)
	for _, p := range m.phrases {
		for i := 0; i+p.words <= len(tokens); i++ {
			window := tokens[i : i+p.words]
			candidate := strings.Join(window, " ")
			if candidate == p.text {
				return p.text, true
			}
			if !codesOverlap(metaphoneCodes(window), p.codes) {
				continue
			}
			if matchr.JaroWinkler(candidate, p.text, false) >= m.threshold {
				return p.text, true
			}
		}
	}
	return "", false
}

// metaphoneCodes returns the primary and secondary Double Metaphone codes of
// the concatenated words.
func metaphoneCodes(ws []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	primary, secondary := matchr.DoubleMetaphone(strings.Join(ws, ""))
	if primary != "" {
		codes[primary] = struct{}{}
	}
	if secondary != "" {
		codes[secondary] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
