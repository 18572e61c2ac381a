// Package anyllm provides a translator backed by
// github.com/mozilla-ai/any-llm-go, which gives one interface over OpenAI,
// Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, llama.cpp and llamafile.
//
// Usage:
//
//	tr, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	tr, err := anyllm.New("ollama", "llama3.1")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

// Backends lists the provider names accepted by [New].
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

// completeFunc runs one completion and returns the first choice's text.
type completeFunc func(ctx context.Context, params anyllmlib.CompletionParams) (string, error)

// Translator implements [translate.Translator] on top of an any-llm-go backend.
type Translator struct {
	name     string
	model    string
	complete completeFunc
}

// New creates a Translator for the named backend.
//
// opts are any-llm-go options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// Without an API key option the backend falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(backendName, model string, opts ...anyllmlib.Option) (*Translator, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backend name must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}
	complete := func(ctx context.Context, params anyllmlib.CompletionParams) (string, error) {
		resp, err := backend.Completion(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errEmptyChoices
		}
		return resp.Choices[0].Message.ContentString(), nil
	}
	return &Translator{name: strings.ToLower(backendName), model: model, complete: complete}, nil
}

var errEmptyChoices = errors.New("empty choices in response")

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: %s", name, strings.Join(Backends, ", "))
	}
}

// Translate implements [translate.Translator].
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	out, err := t.complete(ctx, t.buildParams(text, targetLang))
	provider := "anyllm/" + t.name
	switch {
	case errors.Is(err, errEmptyChoices):
		return "", translate.NewError(provider, translate.KindMalformed, err)
	case err != nil:
		return "", translate.NewError(provider, translate.KindNetwork, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", translate.NewError(provider, translate.KindMalformed, errors.New("empty completion"))
	}
	return out, nil
}

func (t *Translator) buildParams(text, targetLang string) anyllmlib.CompletionParams {
	temperature := 0.0
	return anyllmlib.CompletionParams{
		Model: t.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: translate.SystemPrompt(targetLang)},
			{Role: anyllmlib.RoleUser, Content: text},
		},
		Temperature: &temperature,
	}
}
