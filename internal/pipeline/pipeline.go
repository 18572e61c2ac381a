// Package pipeline turns queued audio frames into published transcript and
// translation messages.
//
// One [Pipeline.Run] goroutine per listening session pops frames from the
// frame queue and feeds them through the [RecognitionStage]. PARTIAL events
// go straight to the publisher; FINAL events are published first and then
// handed to the [TranslationStage], which guarantees the translation of an
// utterance is never published before its final transcript and that
// translations come out in utterance order.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Pipeline wires the stages of one listening session.
type Pipeline struct {
	queue       *audio.FrameQueue
	recognition *RecognitionStage
	translation *TranslationStage
	pub         Publisher
	metrics     *observe.Metrics
	logger      *slog.Logger
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records the queue depth seen by the consumer.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New returns a Pipeline reading from queue.
func New(queue *audio.FrameQueue, rec *RecognitionStage, tr *TranslationStage, pub Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:       queue,
		recognition: rec,
		translation: tr,
		pub:         pub,
		metrics:     observe.Discard(),
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes frames until ctx is cancelled, which is the normal way to
// stop and returns nil, or until recognition fails, which returns the
// decoder error.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		frame, err := p.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		p.metrics.RecordQueueDepth(ctx, p.queue.Len())

		if err := p.Step(ctx, frame); err != nil {
			// Stopping cancels ctx, which a decoder may surface as its own error.
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Step runs one frame through recognition and publishes what it yields.
func (p *Pipeline) Step(ctx context.Context, frame types.AudioFrame) error {
	ev, ok, err := p.recognition.Process(ctx, frame)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p.pub.Publish(types.TranscriptMessage(ev))
	if ev.IsFinal() {
		observe.Logger(ctx).Debug("pipeline: utterance finalized", "chars", len(ev.Text))
		p.translation.Submit(ctx, ev.Text)
	}
	return nil
}

// Reset clears utterance state in both stages.
func (p *Pipeline) Reset() {
	p.recognition.Reset()
	p.translation.Reset()
}
