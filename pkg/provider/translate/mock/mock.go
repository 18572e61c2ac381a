// Package mock provides a test double for [translate.Translator].
//
// By default the mock answers "<lang>:<text>". Tests can delay or fail
// individual texts to build staggered-latency and failure scenarios.
//
// Example:
//
//	tr := &mock.Translator{
//	    Delays:   map[string]time.Duration{"first": 50 * time.Millisecond},
//	    Failures: map[string]error{"bad": errors.New("quota")},
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

// Call records a single Translate invocation.
type Call struct {
	Text string
	Lang string
}

// Translator is a mock implementation of [translate.Translator]. It is safe
// for concurrent use.
type Translator struct {
	mu sync.Mutex

	// Func, if set, computes the result and overrides the defaults.
	Func func(ctx context.Context, text, lang string) (string, error)

	// Delays holds per-text latency applied before answering.
	Delays map[string]time.Duration

	// Failures holds per-text errors. The error is wrapped in a
	// [translate.Error] of kind Network unless it already is one.
	Failures map[string]error

	// Calls records every invocation in arrival order.
	Calls []Call

	// Block, if non-nil, is received from before answering. Closing it
	// releases every waiting call.
	Block chan struct{}
}

// Translate implements [translate.Translator].
func (m *Translator) Translate(ctx context.Context, text, lang string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Text: text, Lang: lang})
	delay := m.Delays[text]
	failure := m.Failures[text]
	fn := m.Func
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", translate.NewError("mock", translate.KindNetwork, ctx.Err())
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", translate.NewError("mock", translate.KindNetwork, ctx.Err())
		}
	}
	if fn != nil {
		return fn(ctx, text, lang)
	}
	if failure != nil {
		if _, ok := failure.(*translate.Error); ok {
			return "", failure
		}
		return "", translate.NewError("mock", translate.KindNetwork, failure)
	}
	return lang + ":" + text, nil
}

// CallCount returns the number of Translate calls.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Recorded returns a copy of the recorded calls.
func (m *Translator) Recorded() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}
