// Package phonetic matches spoken phrases against a glossary of terms by
// pronunciation.
//
// A phrase is a candidate for a term when the Double Metaphone codes of any of
// its words overlap with the codes of any word of the term. Candidates are
// ranked by Jaro-Winkler similarity and accepted above the phonetic
// threshold. Without a phonetic candidate, a plain Jaro-Winkler match above
// the stricter fuzzy threshold is accepted instead.
//
// Multi-word terms ("Tower of Whispers") compare word by word as well as on
// the full and the space-stripped strings, keeping the best score.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 4
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// WithMinLength sets the shortest phrase, in letters without spaces, that is
// ever considered. Short function words otherwise collide with short terms.
// Default: 4.
func WithMinLength(n int) Option {
	return func(m *Matcher) { m.minLength = n }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a glossary entry with its precomputed comparison keys.
type term struct {
	original string
	lower    string
	tokens   []string
	joined   string
	codes    map[string]struct{}
}

// Terms is a prepared glossary. Build it once with [Prepare] and share it
// between goroutines.
type Terms struct {
	terms    []term
	maxWords int
}

// Prepare precomputes phonetic codes for every non-blank entry.
func Prepare(glossary []string) *Terms {
	ts := &Terms{}
	for _, g := range glossary {
		lower := strings.ToLower(strings.TrimSpace(g))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		ts.terms = append(ts.terms, term{
			original: strings.Join(strings.Fields(g), " "),
			lower:    strings.Join(tokens, " "),
			tokens:   tokens,
			joined:   strings.Join(tokens, ""),
			codes:    codesFor(tokens),
		})
		ts.maxWords = max(ts.maxWords, len(tokens))
	}
	return ts
}

// Len returns the number of terms.
func (ts *Terms) Len() int { return len(ts.terms) }

// MaxWords returns the word count of the longest term, or 0 when empty.
func (ts *Terms) MaxWords() int { return ts.maxWords }

// Match finds the term that sounds most like phrase. When matched is false,
// corrected is phrase unchanged and score is 0.
func (m *Matcher) Match(phrase string, ts *Terms) (corrected string, score float64, matched bool) {
	if ts == nil || len(ts.terms) == 0 {
		return phrase, 0, false
	}
	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	joined := strings.Join(tokens, "")
	if utf8.RuneCountInString(joined) < m.minLength {
		return phrase, 0, false
	}
	lower = strings.Join(tokens, " ")
	codes := codesFor(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range ts.terms {
		s := similarity(tokens, t.tokens, lower, t.lower, joined, t.joined)
		if overlap(codes, t.codes) {
			if s >= m.phoneticThreshold && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = t.original, s, true
			}
			continue
		}
		if !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore {
			best, bestScore = t.original, s
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// space-stripped strings and, for equal word counts, the mean of the
// word-by-word scores.
func similarity(aTokens, bTokens []string, aFull, bFull, aJoined, bJoined string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)
	if s := matchr.JaroWinkler(aJoined, bJoined, false); s > score {
		score = s
	}
	if len(aTokens) == len(bTokens) && len(aTokens) > 1 {
		var sum float64
		for i := range aTokens {
			sum += matchr.JaroWinkler(aTokens[i], bTokens[i], false)
		}
		if s := sum / float64(len(aTokens)); s > score {
			score = s
		}
	}
	return score
}
