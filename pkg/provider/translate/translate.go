// Package translate defines the translation collaborator of the pipeline.
//
// A [Translator] turns one finalized transcript into the target language. It
// is a plain text-in, text-out call; ordering, concurrency limits and retries
// (there are none) are the caller's business. Implementations must be safe
// for concurrent use because the pipeline overlaps requests for successive
// utterances.
//
// Failures are reported as [*Error] values carrying a [Kind], so callers can
// tell an expired key from a flaky network without parsing messages.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Translator translates text into targetLang, an ISO 639-1 style code such
// as "fr" or "de".
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Func adapts a function to [Translator].
type Func func(ctx context.Context, text, targetLang string) (string, error)

// Translate implements [Translator].
func (f Func) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return f(ctx, text, targetLang)
}

// Kind classifies a translation failure.
type Kind int

const (
	// KindNetwork covers transport failures, timeouts and unexpected 5xx responses.
	KindNetwork Kind = iota + 1

	// KindAuth means the provider rejected the credentials.
	KindAuth

	// KindQuota means the provider throttled the request or the quota is exhausted.
	KindQuota

	// KindMalformed means the provider answered with something unparseable.
	KindMalformed

	// KindUnavailable means the request was not attempted, e.g. because the
	// circuit breaker is open.
	KindUnavailable
)

// String returns the label used in logs and metric attributes.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindMalformed:
		return "malformed"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified translation failure.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

// NewError returns an [*Error] for provider.
func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. Context cancellation and
// deadline errors count as network failures; anything unclassified also maps
// to [KindNetwork].
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindNetwork
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindQuota
	default:
		return KindNetwork
	}
}
