package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Corrector rewrites finalized transcript text, e.g. to fix misheard
// glossary terms. It must be safe for concurrent use.
type Corrector interface {
	Correct(text string) string
}

// RecognitionStage feeds frames to a decoder and turns its hypotheses into
// transcript events. It is driven from a single goroutine.
type RecognitionStage struct {
	dec       decoder.Decoder
	corrector Corrector
	metrics   *observe.Metrics

	lastPartial string
}

// RecognitionOption configures a [RecognitionStage].
type RecognitionOption func(*RecognitionStage)

// WithCorrector rewrites FINAL text before it is forwarded.
func WithCorrector(c Corrector) RecognitionOption {
	return func(s *RecognitionStage) { s.corrector = c }
}

// WithRecognitionMetrics records event counts and decoder latency.
func WithRecognitionMetrics(m *observe.Metrics) RecognitionOption {
	return func(s *RecognitionStage) { s.metrics = m }
}

// NewRecognitionStage returns a stage over dec.
func NewRecognitionStage(dec decoder.Decoder, opts ...RecognitionOption) *RecognitionStage {
	s := &RecognitionStage{dec: dec, metrics: observe.Discard()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Process feeds one frame and reports the event it produced, if any.
//
// Blank FINALs and PARTIALs equal to the previous PARTIAL of the same
// utterance are suppressed. Decoder failures are returned wrapped and are
// fatal to the session.
func (s *RecognitionStage) Process(ctx context.Context, frame types.AudioFrame) (types.RecognitionEvent, bool, error) {
	start := time.Now()
	h, err := s.dec.Feed(ctx, frame)
	if err != nil {
		return types.RecognitionEvent{}, false, fmt.Errorf("pipeline: recognize: %w", err)
	}
	if h.None() {
		return types.RecognitionEvent{}, false, nil
	}

	ev := h.Event()
	switch ev.Kind {
	case types.Partial:
		ev.Text = strings.TrimSpace(ev.Text)
		if ev.Text == "" || ev.Text == s.lastPartial {
			return types.RecognitionEvent{}, false, nil
		}
		s.lastPartial = ev.Text
	case types.Final:
		s.lastPartial = ""
		if types.IsBlank(ev.Text) {
			return types.RecognitionEvent{}, false, nil
		}
		ev.Text = strings.TrimSpace(ev.Text)
		if s.corrector != nil {
			ev.Text = s.corrector.Correct(ev.Text)
		}
	}
	s.metrics.RecordRecognition(ctx, ev.Kind.String(), time.Since(start))
	return ev, true, nil
}

// Reset drops the current utterance in the decoder and in the stage.
func (s *RecognitionStage) Reset() {
	s.dec.Reset()
	s.lastPartial = ""
}
