// Package decoder defines the speech recognition collaborator of the pipeline.
//
// A [Decoder] accepts audio frames one at a time and, per frame, yields either
// nothing, a partial hypothesis for the current utterance, or a final
// hypothesis that closes it. The caller owns utterance state through
// [Decoder.Reset]; decoders never reset themselves except after emitting a
// final.
//
// Batch engines such as whisper.cpp plug in through [Transcriber] and the
// energy-based [Segmenter]. Streaming services such as Deepgram implement
// [Decoder] directly.
package decoder

import (
	"context"
	"errors"

	"github.com/MrWong99/lingualive/pkg/types"
)

// ErrDecode marks failures of the recognition engine itself (bad model,
// broken stream, malformed frame). Callers treat it as fatal to the session.
var ErrDecode = errors.New("decoder: decode error")

// Hypothesis is the outcome of feeding one frame. The zero value means no result.
type Hypothesis struct {
	Kind types.EventKind
	Text string
}

// None reports whether the frame produced no result.
func (h Hypothesis) None() bool { return h.Kind == 0 }

// Event converts a non-empty hypothesis into a recognition event.
func (h Hypothesis) Event() types.RecognitionEvent {
	return types.RecognitionEvent{Kind: h.Kind, Text: h.Text}
}

// PartialOf returns a partial hypothesis.
func PartialOf(text string) Hypothesis { return Hypothesis{Kind: types.Partial, Text: text} }

// FinalOf returns a final hypothesis.
func FinalOf(text string) Hypothesis { return Hypothesis{Kind: types.Final, Text: text} }

// Decoder turns a frame sequence into hypotheses.
//
// A Decoder is owned by a single goroutine; it is not safe for concurrent use.
type Decoder interface {
	// Feed processes one frame. Errors wrap [ErrDecode].
	Feed(ctx context.Context, frame types.AudioFrame) (Hypothesis, error)

	// Reset discards all utterance-local state so the next frame starts a
	// fresh utterance.
	Reset()

	// Close releases engine resources. Safe to call more than once.
	Close() error
}

// Config describes the audio and recognition hints for a decoder.
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// Language is the spoken language code (e.g. "en"). Empty lets the engine
	// pick its default or auto-detect.
	Language string

	// Keywords are vocabulary hints for engines that support boosting.
	Keywords []string
}

// Provider constructs decoders. Implementations must be safe for concurrent use.
type Provider interface {
	NewDecoder(ctx context.Context, cfg Config) (Decoder, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, cfg Config) (Decoder, error)

// NewDecoder implements [Provider].
func (f ProviderFunc) NewDecoder(ctx context.Context, cfg Config) (Decoder, error) {
	return f(ctx, cfg)
}
