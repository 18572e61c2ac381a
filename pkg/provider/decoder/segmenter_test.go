package decoder_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/types"
)

// countingTranscriber reports how many samples it was given, which lets the
// tests check exactly what the segmenter buffered.
type countingTranscriber struct {
	calls int
	err   error
}

func (c *countingTranscriber) Transcribe(_ context.Context, samples []int16, _ int) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return fmt.Sprintf("  %d samples ", len(samples)), nil
}

const rate = 16000

// block returns 100 ms of audio at the given constant amplitude.
func block(amplitude int16) types.AudioFrame {
	s := make([]int16, rate/10)
	for i := range s {
		s[i] = amplitude
	}
	return types.AudioFrame{Samples: s, SampleRate: rate}
}

func feedAll(t *testing.T, seg *decoder.Segmenter, frames ...types.AudioFrame) []decoder.Hypothesis {
	t.Helper()
	var out []decoder.Hypothesis
	for _, f := range frames {
		h, err := seg.Feed(context.Background(), f)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if !h.None() {
			out = append(out, h)
		}
	}
	return out
}

func repeat(f types.AudioFrame, n int) []types.AudioFrame {
	out := make([]types.AudioFrame, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func TestSegmenter_SilenceOnlyProducesNothing(t *testing.T) {
	tr := &countingTranscriber{}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{}, nil)

	got := feedAll(t, seg, repeat(block(0), 30)...)
	if len(got) != 0 {
		t.Errorf("got %v, want no hypotheses", got)
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times on silence", tr.calls)
	}
}

func TestSegmenter_FinalAfterTrailingSilence(t *testing.T) {
	tr := &countingTranscriber{}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{PartialInterval: 0}, nil)

	frames := append(repeat(block(2000), 3), repeat(block(0), 5)...)
	got := feedAll(t, seg, frames...)

	if len(got) != 1 {
		t.Fatalf("got %d hypotheses, want 1: %v", len(got), got)
	}
	if got[0].Kind != types.Final {
		t.Errorf("kind = %v, want final", got[0].Kind)
	}
	// 3 speech + 5 silence blocks of 1600 samples, trimmed.
	if got[0].Text != "12800 samples" {
		t.Errorf("text = %q, want %q", got[0].Text, "12800 samples")
	}
}

func TestSegmenter_PartialsThenFinal(t *testing.T) {
	tr := &countingTranscriber{}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{PartialInterval: 200 * time.Millisecond}, nil)

	frames := append(repeat(block(2000), 4), repeat(block(0), 5)...)
	got := feedAll(t, seg, frames...)

	want := []decoder.Hypothesis{
		decoder.PartialOf("3200 samples"),
		decoder.PartialOf("6400 samples"),
		decoder.FinalOf("14400 samples"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hypothesis %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSegmenter_MaxUtteranceForcesFinal(t *testing.T) {
	tr := &countingTranscriber{}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{MaxUtterance: 500 * time.Millisecond}, nil)

	got := feedAll(t, seg, repeat(block(2000), 5)...)
	if len(got) != 1 || got[0].Kind != types.Final {
		t.Fatalf("got %v, want a single final", got)
	}
}

func TestSegmenter_ResetStartsFreshUtterance(t *testing.T) {
	tr := &countingTranscriber{}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{}, nil)

	feedAll(t, seg, repeat(block(2000), 3)...)
	seg.Reset()

	got := feedAll(t, seg, append(repeat(block(2000), 1), repeat(block(0), 5)...)...)
	if len(got) != 1 {
		t.Fatalf("got %v, want one final", got)
	}
	// Only the post-reset audio is transcribed: 1 speech + 5 silence blocks.
	if got[0].Text != "9600 samples" {
		t.Errorf("text = %q, want %q", got[0].Text, "9600 samples")
	}
}

func TestSegmenter_TranscriberErrorIsDecodeError(t *testing.T) {
	tr := &countingTranscriber{err: errors.New("model exploded")}
	seg := decoder.NewSegmenter(tr, decoder.SegmenterConfig{}, nil)

	var err error
	for _, f := range append(repeat(block(2000), 2), repeat(block(0), 5)...) {
		if _, err = seg.Feed(context.Background(), f); err != nil {
			break
		}
	}
	if !errors.Is(err, decoder.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestSegmenter_RejectsFrameWithoutRate(t *testing.T) {
	seg := decoder.NewSegmenter(&countingTranscriber{}, decoder.SegmenterConfig{}, nil)
	_, err := seg.Feed(context.Background(), types.AudioFrame{Samples: []int16{1}})
	if !errors.Is(err, decoder.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestSegmenter_CloseOnce(t *testing.T) {
	var closed int
	seg := decoder.NewSegmenter(&countingTranscriber{}, decoder.SegmenterConfig{}, func() error {
		closed++
		return nil
	})
	_ = seg.Close()
	_ = seg.Close()
	if closed != 1 {
		t.Errorf("close func called %d times, want 1", closed)
	}
}
