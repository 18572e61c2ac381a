// Package openai provides a translator backed by the OpenAI chat completions
// API, or any server that speaks the same protocol (vLLM, LM Studio, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

const providerName = "openai"

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

// Translator implements [translate.Translator] with a single chat completion
// per request.
type Translator struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the translator.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Translator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI Translator. The SDK's automatic retries are
// disabled: every utterance gets exactly one attempt.
func New(apiKey, model string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Translator{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Translate implements [translate.Translator].
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	resp, err := t.client.Chat.Completions.New(ctx, t.buildParams(text, targetLang))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", translate.NewError(providerName, translate.KindMalformed, errors.New("empty choices in response"))
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", translate.NewError(providerName, translate.KindMalformed, errors.New("empty completion"))
	}
	return out, nil
}

func (t *Translator) buildParams(text, targetLang string) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(translate.SystemPrompt(targetLang)),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(0.0),
	}
}

// classify maps SDK errors onto translation failure kinds.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return translate.NewError(providerName, translate.KindForStatus(apiErr.StatusCode), err)
	}
	return translate.NewError(providerName, translate.KindNetwork, err)
}
