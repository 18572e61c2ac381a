// Package mock provides test doubles for the decoder package interfaces.
//
// Decoder replays a scripted sequence of hypotheses, one per Feed call, and
// records every frame it receives. Provider hands out a configured Decoder
// and records the Config it was asked for.
//
// Example:
//
//	dec := &mock.Decoder{Script: []decoder.Hypothesis{
//	    decoder.PartialOf("hell"),
//	    decoder.PartialOf("hello"),
//	    decoder.FinalOf("hello world"),
//	}}
//	p := &mock.Provider{Decoder: dec}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Decoder is a mock implementation of [decoder.Decoder].
type Decoder struct {
	mu sync.Mutex

	// Script holds one hypothesis per Feed call. Calls past the end of the
	// script return no result.
	Script []decoder.Hypothesis

	// FeedErr, if non-nil, is returned by every Feed call. Set FailAt to a
	// positive call number to fail only that call instead.
	FeedErr error
	FailAt  int

	// FeedFunc, if set, overrides Script.
	FeedFunc func(call int, frame types.AudioFrame) (decoder.Hypothesis, error)

	// Frames records every frame passed to Feed.
	Frames []types.AudioFrame

	// CallCountReset and CallCountClose record lifecycle calls.
	CallCountReset int
	CallCountClose int

	pos int
}

// Feed implements [decoder.Decoder].
func (d *Decoder) Feed(_ context.Context, frame types.AudioFrame) (decoder.Hypothesis, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, frame)
	call := len(d.Frames)
	if d.FeedErr != nil && (d.FailAt == 0 || d.FailAt == call) {
		return decoder.Hypothesis{}, d.FeedErr
	}
	if d.FeedFunc != nil {
		return d.FeedFunc(call, frame)
	}
	if d.pos >= len(d.Script) {
		return decoder.Hypothesis{}, nil
	}
	h := d.Script[d.pos]
	d.pos++
	return h, nil
}

// Reset implements [decoder.Decoder].
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountReset++
}

// Close implements [decoder.Decoder].
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}

// FeedCount returns how many frames have been fed.
func (d *Decoder) FeedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Frames)
}

// ResetCount returns how many times Reset was called.
func (d *Decoder) ResetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountReset
}

// Provider is a mock implementation of [decoder.Provider].
type Provider struct {
	mu sync.Mutex

	// Decoder is returned by NewDecoder. If nil a fresh empty Decoder is returned.
	Decoder decoder.Decoder

	// NewDecoderErr, if non-nil, is returned by NewDecoder.
	NewDecoderErr error

	// Configs records every Config passed to NewDecoder.
	Configs []decoder.Config
}

// NewDecoder implements [decoder.Provider].
func (p *Provider) NewDecoder(_ context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.NewDecoderErr != nil {
		return nil, p.NewDecoderErr
	}
	if p.Decoder != nil {
		return p.Decoder, nil
	}
	return &Decoder{}, nil
}

// CallCount returns how many times NewDecoder was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}
