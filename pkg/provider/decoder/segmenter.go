package decoder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Segmentation defaults. Frames quieter than the RMS threshold count as
// silence; an utterance closes after enough trailing silence or when the
// buffer reaches the maximum length.
const (
	DefaultRMSThreshold    = 300
	DefaultSilence         = 500 * time.Millisecond
	DefaultMaxUtterance    = 10 * time.Second
	DefaultPartialInterval = time.Second
)

// Transcriber runs batch recognition over a complete buffer of samples.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// SegmenterConfig tunes utterance detection.
type SegmenterConfig struct {
	// RMSThreshold below which a frame counts as silence, in int16 units.
	RMSThreshold float64

	// Silence is the trailing silence that closes an utterance.
	Silence time.Duration

	// MaxUtterance forces a final once this much audio has been buffered.
	MaxUtterance time.Duration

	// PartialInterval is the minimum amount of new speech between partial
	// transcriptions. Zero disables partials.
	PartialInterval time.Duration
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.RMSThreshold <= 0 {
		c.RMSThreshold = DefaultRMSThreshold
	}
	if c.Silence <= 0 {
		c.Silence = DefaultSilence
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.PartialInterval < 0 {
		c.PartialInterval = 0
	}
	return c
}

// Compile-time interface assertion.
var _ Decoder = (*Segmenter)(nil)

// Segmenter adapts a batch [Transcriber] to the frame-by-frame [Decoder]
// contract by splitting the stream into utterances on signal energy.
type Segmenter struct {
	t     Transcriber
	cfg   SegmenterConfig
	close func() error

	// utterance state
	buffer       []int16
	sampleRate   int
	hadSpeech    bool
	silence      time.Duration
	sincePartial time.Duration
	lastPartial  string
}

// NewSegmenter returns a Segmenter over t. closeFn, if non-nil, is called by
// Close to release the engine.
func NewSegmenter(t Transcriber, cfg SegmenterConfig, closeFn func() error) *Segmenter {
	return &Segmenter{t: t, cfg: cfg.withDefaults(), close: closeFn}
}

// Feed implements [Decoder].
func (s *Segmenter) Feed(ctx context.Context, frame types.AudioFrame) (Hypothesis, error) {
	if frame.SampleRate <= 0 {
		return Hypothesis{}, fmt.Errorf("%w: frame has no sample rate", ErrDecode)
	}
	if s.sampleRate != 0 && frame.SampleRate != s.sampleRate && len(s.buffer) > 0 {
		return Hypothesis{}, fmt.Errorf("%w: sample rate changed mid-utterance from %d to %d Hz", ErrDecode, s.sampleRate, frame.SampleRate)
	}
	s.sampleRate = frame.SampleRate
	dur := frame.Duration()

	if audio.RMS(frame.Samples) < s.cfg.RMSThreshold {
		if !s.hadSpeech {
			return Hypothesis{}, nil
		}
		s.buffer = append(s.buffer, frame.Samples...)
		s.silence += dur
		if s.silence >= s.cfg.Silence {
			return s.finish(ctx)
		}
		return Hypothesis{}, nil
	}

	s.hadSpeech = true
	s.silence = 0
	s.sincePartial += dur
	s.buffer = append(s.buffer, frame.Samples...)

	if s.buffered() >= s.cfg.MaxUtterance {
		return s.finish(ctx)
	}
	if s.cfg.PartialInterval > 0 && s.sincePartial >= s.cfg.PartialInterval {
		s.sincePartial = 0
		text, err := s.transcribe(ctx)
		if err != nil {
			return Hypothesis{}, err
		}
		if text == "" || text == s.lastPartial {
			return Hypothesis{}, nil
		}
		s.lastPartial = text
		return PartialOf(text), nil
	}
	return Hypothesis{}, nil
}

func (s *Segmenter) buffered() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.buffer)) * time.Second / time.Duration(s.sampleRate)
}

func (s *Segmenter) finish(ctx context.Context) (Hypothesis, error) {
	text, err := s.transcribe(ctx)
	s.Reset()
	if err != nil {
		return Hypothesis{}, err
	}
	return FinalOf(text), nil
}

func (s *Segmenter) transcribe(ctx context.Context) (string, error) {
	text, err := s.t.Transcribe(ctx, s.buffer, s.sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return strings.TrimSpace(text), nil
}

// Reset implements [Decoder].
func (s *Segmenter) Reset() {
	s.buffer = nil
	s.hadSpeech = false
	s.silence = 0
	s.sincePartial = 0
	s.lastPartial = ""
}

// Close implements [Decoder].
func (s *Segmenter) Close() error {
	if s.close == nil {
		return nil
	}
	fn := s.close
	s.close = nil
	return fn()
}
