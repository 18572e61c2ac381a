// Package transcript corrects recognized text before it is translated.
//
// Speech recognition routinely mangles proper nouns and jargon: product
// names, people, places. A [Glossary] holds the terms a deployment cares
// about and rewrites phrases that sound like one of them, so "kuber netties"
// reaches the translator as "Kubernetes".
//
// Only FINAL text is corrected; partials are shown as heard.
package transcript

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/MrWong99/lingualive/internal/transcript/phonetic"
)

// Correction records one substitution.
type Correction struct {
	// Original is the phrase as recognized, without surrounding punctuation.
	Original string

	// Corrected is the glossary term that replaced it.
	Corrected string

	// Score is the similarity of the two in [0, 1].
	Score float64
}

// Option configures a [Glossary].
type Option func(*Glossary)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(g *Glossary) { g.matcher = m }
}

// WithLogger sets the logger used to report corrections at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(g *Glossary) { g.logger = l }
}

// Glossary rewrites phrases that sound like a known term. It is safe for
// concurrent use; [Glossary.SetTerms] swaps the term list atomically.
type Glossary struct {
	matcher *phonetic.Matcher
	logger  *slog.Logger
	terms   atomic.Pointer[phonetic.Terms]
}

// NewGlossary returns a Glossary over terms.
func NewGlossary(terms []string, opts ...Option) *Glossary {
	g := &Glossary{
		matcher: phonetic.New(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.SetTerms(terms)
	return g
}

// SetTerms replaces the glossary.
func (g *Glossary) SetTerms(terms []string) {
	g.terms.Store(phonetic.Prepare(terms))
}

// Len returns the number of terms.
func (g *Glossary) Len() int { return g.terms.Load().Len() }

// Correct returns text with glossary corrections applied.
func (g *Glossary) Correct(text string) string {
	out, corrections := g.Apply(text)
	if len(corrections) > 0 {
		attrs := make([]string, 0, len(corrections))
		for _, c := range corrections {
			attrs = append(attrs, c.Original+" -> "+c.Corrected)
		}
		g.logger.Debug("transcript: glossary corrections", "count", len(corrections), "corrections", attrs)
	}
	return out
}

// Apply returns the corrected text and the substitutions that produced it.
//
// At every word it tries windows of up to one word more than the longest
// term, so a single term split in two by the recognizer is still found. The
// best scoring window wins; a window is skipped when the match starting at
// the next word is better, which keeps leading filler words out of a term.
// Windows never span a sentence punctuation mark, and punctuation around
// the window is kept.
func (g *Glossary) Apply(text string) (string, []Correction) {
	ts := g.terms.Load()
	tokens := strings.Fields(text)
	if ts.Len() == 0 || len(tokens) == 0 {
		return text, nil
	}
	maxWords := ts.MaxWords() + 1

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		m, ok := g.bestAt(tokens, i, maxWords, ts)
		if ok {
			if next, nok := g.bestAt(tokens, i+1, maxWords, ts); nok && next.score > m.score {
				ok = false
			}
		}
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}

		lead, _ := splitPunct(tokens[i])
		_, trail := splitPunct(tokens[i+m.words-1])
		out = append(out, lead+m.term+trail)
		if m.phrase != m.term {
			corrections = append(corrections, Correction{Original: m.phrase, Corrected: m.term, Score: m.score})
		}
		i += m.words
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

type windowMatch struct {
	phrase string
	term   string
	score  float64
	words  int
}

// bestAt returns the best scoring window starting at tokens[i].
func (g *Glossary) bestAt(tokens []string, i, maxWords int, ts *phonetic.Terms) (windowMatch, bool) {
	var (
		best  windowMatch
		found bool
		words []string
	)
	for n := 1; n <= maxWords && i+n <= len(tokens); n++ {
		lead, core, trail := splitToken(tokens[i+n-1])
		if n > 1 && lead != "" {
			break
		}
		if core == "" {
			break
		}
		words = append(words, core)
		phrase := strings.Join(words, " ")
		if term, score, ok := g.matcher.Match(phrase, ts); ok && (!found || score >= best.score) {
			best = windowMatch{phrase: phrase, term: term, score: score, words: n}
			found = true
		}
		if trail != "" {
			break
		}
	}
	return best, found
}

// splitPunct returns the leading and trailing punctuation of tok.
func splitPunct(tok string) (lead, trail string) {
	lead, _, trail = splitToken(tok)
	return lead, trail
}

// splitToken separates leading and trailing punctuation from a word.
func splitToken(tok string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(tok, unicode.IsPunct)
	lead = tok[:len(tok)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}
