package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

// Compile-time interface assertions.
var (
	_ translate.Translator = (*GuardedTranslator)(nil)
	_ decoder.Provider     = (*DecoderFallback)(nil)
)

// GuardedTranslator puts a [Breaker] in front of a translator. While the
// breaker is open calls fail fast with a [translate.KindUnavailable] error.
type GuardedTranslator struct {
	next    translate.Translator
	breaker *Breaker
}

// NewGuardedTranslator wraps next. cfg.Name is used as the provider name in
// unavailable errors.
func NewGuardedTranslator(next translate.Translator, cfg Config) *GuardedTranslator {
	return &GuardedTranslator{next: next, breaker: NewBreaker(cfg)}
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedTranslator) Breaker() *Breaker { return g.breaker }

// Translate implements [translate.Translator].
func (g *GuardedTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	var out string
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.next.Translate(ctx, text, targetLang)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", translate.NewError(g.breaker.Name(), translate.KindUnavailable, err)
	}
	return out, err
}

// DecoderFallback is a [decoder.Provider] that creates the decoder from the
// first healthy backend.
type DecoderFallback struct {
	group *Group[decoder.Provider]
	last  func(name string)
}

// NewDecoderFallback returns a DecoderFallback with primary as the preferred
// backend. onSelect, if non-nil, receives the name of the backend that
// produced each decoder.
func NewDecoderFallback(primaryName string, primary decoder.Provider, cfg Config, onSelect func(name string)) *DecoderFallback {
	return &DecoderFallback{group: NewGroup(primaryName, primary, cfg), last: onSelect}
}

// Add registers a fallback backend.
func (f *DecoderFallback) Add(name string, p decoder.Provider) { f.group.Add(name, p) }

// Names returns the backend names in try order.
func (f *DecoderFallback) Names() []string { return f.group.Names() }

// NewDecoder implements [decoder.Provider].
func (f *DecoderFallback) NewDecoder(ctx context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	dec, name, err := Do(f.group, func(p decoder.Provider) (decoder.Decoder, error) {
		return p.NewDecoder(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	if f.last != nil {
		f.last(name)
	}
	return dec, nil
}
