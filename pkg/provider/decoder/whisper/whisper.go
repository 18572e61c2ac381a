// Package whisper provides a decoder backed by the whisper.cpp CGO bindings.
//
// whisper.cpp is a batch engine, so the provider wraps it in a
// [decoder.Segmenter]: speech is buffered until trailing silence closes the
// utterance, and the buffer is re-transcribed periodically to produce
// partials. The static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// Usage:
//
//	p, err := whisper.New("/models/ggml-base.en.bin", whisper.WithLanguage("en"))
//	dec, err := p.NewDecoder(ctx, decoder.Config{SampleRate: 16000})
//	hyp, err := dec.Feed(ctx, frame)
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisper.cpp only accepts 16 kHz input.
const modelSampleRate = 16000

const defaultLanguage = "en"

// Compile-time interface assertion.
var _ decoder.Provider = (*Provider)(nil)

// Provider loads the model once and hands out one decoder per session.
// Decoders share the model but each inference runs on its own whisper context.
type Provider struct {
	model    whisperlib.Model
	language string
	seg      decoder.SegmenterConfig

	closeOnce sync.Once
}

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithLanguage sets the default spoken language (e.g. "en", "de", "auto").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilence sets the trailing silence that closes an utterance.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.seg.Silence = d }
}

// WithMaxUtterance sets the buffered length that forces a final.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.seg.MaxUtterance = d }
}

// WithPartialInterval sets how much new speech triggers a partial
// transcription. Zero disables partials.
func WithPartialInterval(d time.Duration) Option {
	return func(p *Provider) { p.seg.PartialInterval = d }
}

// WithRMSThreshold sets the energy level below which audio counts as silence.
func WithRMSThreshold(v float64) Option {
	return func(p *Provider) { p.seg.RMSThreshold = v }
}

// New loads the model at modelPath. The caller must call Close when done.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:    model,
		language: defaultLanguage,
		seg:      decoder.SegmenterConfig{PartialInterval: decoder.DefaultPartialInterval},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder implements [decoder.Provider].
func (p *Provider) NewDecoder(ctx context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if cfg.SampleRate != 0 && cfg.SampleRate != modelSampleRate {
		return nil, fmt.Errorf("whisper: sample rate must be %d Hz, got %d", modelSampleRate, cfg.SampleRate)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	t := &transcriber{model: p.model, language: lang}
	return decoder.NewSegmenter(t, p.seg, nil), nil
}

// Close releases the model.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.model != nil {
			err = p.model.Close()
		}
	})
	return err
}

type transcriber struct {
	model    whisperlib.Model
	language string
}

// Transcribe runs one inference on a fresh context; contexts are not safe to share.
func (t *transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sampleRate != modelSampleRate {
		samples = audio.Resample(samples, sampleRate, modelSampleRate)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", t.language, "err", err)
	}
	if err := wctx.Process(audio.ToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
