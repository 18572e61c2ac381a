package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/provider/decoder/mock"
	"github.com/MrWong99/lingualive/pkg/types"
)

// processAll feeds one frame per scripted hypothesis and collects events.
func processAll(t *testing.T, s *RecognitionStage, n int) []types.RecognitionEvent {
	t.Helper()
	var out []types.RecognitionEvent
	for range n {
		ev, ok, err := s.Process(context.Background(), frame(160))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out
}

func TestRecognitionStage_Suppression(t *testing.T) {
	tests := []struct {
		name   string
		script []decoder.Hypothesis
		want   []types.RecognitionEvent
	}{
		{
			name: "partials then final",
			script: []decoder.Hypothesis{
				decoder.PartialOf("hell"),
				decoder.PartialOf("hello"),
				decoder.FinalOf("hello world"),
			},
			want: []types.RecognitionEvent{
				{Kind: types.Partial, Text: "hell"},
				{Kind: types.Partial, Text: "hello"},
				{Kind: types.Final, Text: "hello world"},
			},
		},
		{
			name: "unchanged partial suppressed",
			script: []decoder.Hypothesis{
				decoder.PartialOf("hello"),
				{},
				decoder.PartialOf("hello"),
				decoder.PartialOf(" hello "),
				decoder.FinalOf("hello"),
			},
			want: []types.RecognitionEvent{
				{Kind: types.Partial, Text: "hello"},
				{Kind: types.Final, Text: "hello"},
			},
		},
		{
			name: "blank final suppressed",
			script: []decoder.Hypothesis{
				decoder.FinalOf(""),
				decoder.FinalOf("  \t "),
				decoder.FinalOf("ok"),
			},
			want: []types.RecognitionEvent{{Kind: types.Final, Text: "ok"}},
		},
		{
			name: "same partial allowed in next utterance",
			script: []decoder.Hypothesis{
				decoder.PartialOf("yes"),
				decoder.FinalOf("yes"),
				decoder.PartialOf("yes"),
			},
			want: []types.RecognitionEvent{
				{Kind: types.Partial, Text: "yes"},
				{Kind: types.Final, Text: "yes"},
				{Kind: types.Partial, Text: "yes"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRecognitionStage(&mock.Decoder{Script: tt.script})
			got := processAll(t, s, len(tt.script))
			if len(got) != len(tt.want) {
				t.Fatalf("events = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRecognitionStage_OrderMatchesFrames(t *testing.T) {
	var script []decoder.Hypothesis
	for i := range 30 {
		script = append(script, decoder.FinalOf(strings.Repeat("a", i+1)))
	}
	dec := &mock.Decoder{Script: script}
	s := NewRecognitionStage(dec)
	got := processAll(t, s, len(script))
	for i, ev := range got {
		if len(ev.Text) != i+1 {
			t.Fatalf("event %d has text %q, order broken", i, ev.Text)
		}
	}
	if dec.FeedCount() != len(script) {
		t.Errorf("fed %d frames, want %d", dec.FeedCount(), len(script))
	}
}

func TestRecognitionStage_ResetForgetsPartial(t *testing.T) {
	dec := &mock.Decoder{Script: []decoder.Hypothesis{
		decoder.PartialOf("hel"),
		decoder.PartialOf("hel"),
	}}
	s := NewRecognitionStage(dec)

	if got := processAll(t, s, 1); len(got) != 1 {
		t.Fatalf("first partial not emitted: %v", got)
	}
	s.Reset()
	if dec.ResetCount() != 1 {
		t.Errorf("decoder reset %d times, want 1", dec.ResetCount())
	}
	if got := processAll(t, s, 1); len(got) != 1 || got[0].Text != "hel" {
		t.Errorf("after reset got %v, want the partial again", got)
	}
}

type upperCorrector struct{}

func (upperCorrector) Correct(text string) string { return strings.ToUpper(text) }

func TestRecognitionStage_CorrectorOnFinalOnly(t *testing.T) {
	s := NewRecognitionStage(&mock.Decoder{Script: []decoder.Hypothesis{
		decoder.PartialOf("zorath"),
		decoder.FinalOf("zorath speaks"),
	}}, WithCorrector(upperCorrector{}))

	got := processAll(t, s, 2)
	if got[0].Text != "zorath" {
		t.Errorf("partial = %q, want uncorrected", got[0].Text)
	}
	if got[1].Text != "ZORATH SPEAKS" {
		t.Errorf("final = %q, want corrected", got[1].Text)
	}
}

func TestRecognitionStage_DecoderError(t *testing.T) {
	boom := errors.New("model exploded")
	s := NewRecognitionStage(&mock.Decoder{FeedErr: errors.Join(decoder.ErrDecode, boom)})
	_, ok, err := s.Process(context.Background(), frame(160))
	if ok || !errors.Is(err, decoder.ErrDecode) || !errors.Is(err, boom) {
		t.Fatalf("Process() = ok=%v err=%v, want wrapped ErrDecode", ok, err)
	}
}
