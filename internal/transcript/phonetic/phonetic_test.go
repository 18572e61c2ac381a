package phonetic_test

import (
	"testing"

	"github.com/MrWong99/lingualive/internal/transcript/phonetic"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	terms := phonetic.Prepare([]string{"Kubernetes", "Zorrath", "Tower of Whispers", "  "})
	m := phonetic.New()

	tests := []struct {
		phrase      string
		want        string
		wantMatched bool
	}{
		{phrase: "kuber netties", want: "Kubernetes", wantMatched: true},
		{phrase: "kubernetties", want: "Kubernetes", wantMatched: true},
		{phrase: "zorath", want: "Zorrath", wantMatched: true},
		{phrase: "ZORRATH", want: "Zorrath", wantMatched: true},
		{phrase: "tower of wispers", want: "Tower of Whispers", wantMatched: true},
		{phrase: "hello", want: "hello"},
		{phrase: "deploy", want: "deploy"},
		{phrase: "cluster", want: "cluster"},
		{phrase: "the", want: "the"},
		{phrase: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			t.Parallel()
			got, score, matched := m.Match(tt.phrase, terms)
			if matched != tt.wantMatched {
				t.Fatalf("Match(%q) matched = %v, want %v", tt.phrase, matched, tt.wantMatched)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
			if !matched && score != 0 {
				t.Errorf("Match(%q) score = %f for no match, want 0", tt.phrase, score)
			}
			if matched && score < 0.9 {
				t.Errorf("Match(%q) score = %f, want >= 0.9", tt.phrase, score)
			}
		})
	}
}

func TestMatcher_ExactMatchScoresOne(t *testing.T) {
	t.Parallel()
	_, score, matched := phonetic.New().Match("zorrath", phonetic.Prepare([]string{"Zorrath"}))
	if !matched || score != 1 {
		t.Errorf("exact match: matched=%v score=%f", matched, score)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()
	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.Match("kuber netties", phonetic.Prepare([]string{"Kubernetes"})); matched {
		t.Error("near match accepted with 0.99 thresholds")
	}
}

func TestMatcher_MinLength(t *testing.T) {
	t.Parallel()
	terms := phonetic.Prepare([]string{"Ark"})
	if _, _, matched := phonetic.New().Match("ark", terms); matched {
		t.Error("matched below the default minimum length")
	}
	if _, _, matched := phonetic.New(phonetic.WithMinLength(3)).Match("ark", terms); !matched {
		t.Error("exact match rejected with minimum length 3")
	}
}

func TestMatcher_EmptyGlossary(t *testing.T) {
	t.Parallel()
	m := phonetic.New()
	for _, ts := range []*phonetic.Terms{nil, phonetic.Prepare(nil)} {
		got, score, matched := m.Match("zorrath", ts)
		if matched || got != "zorrath" || score != 0 {
			t.Errorf("Match on empty glossary = (%q, %f, %v)", got, score, matched)
		}
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	ts := phonetic.Prepare([]string{"Kubernetes", "", "Tower  of Whispers"})
	if ts.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ts.Len())
	}
	if ts.MaxWords() != 3 {
		t.Errorf("MaxWords() = %d, want 3", ts.MaxWords())
	}
}
