// Package azure provides a translator backed by the Microsoft Translator
// Text API v3.
//
// Each call issues a single POST to {endpoint}/translate with the target
// language in the query string and the text in a one-element JSON array.
// There is no retry; a failed call is classified and returned.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

const (
	defaultEndpoint = "https://api.cognitive.microsofttranslator.com"
	apiVersion      = "3.0"
	defaultTimeout  = 5 * time.Second
	providerName    = "azure"

	// Error bodies are only read for the error message.
	maxErrorBody = 4 << 10
)

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

// Translator implements [translate.Translator] using Microsoft Translator.
type Translator struct {
	key      string
	region   string
	endpoint string
	client   *http.Client
}

// Option is a functional option for [Translator].
type Option func(*Translator)

// WithRegion sets the Azure resource region (e.g. "westeurope"). Required for
// regional and multi-service resources.
func WithRegion(region string) Option {
	return func(t *Translator) { t.region = region }
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(t *Translator) { t.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithTimeout sets the per-request timeout. Defaults to 5 s.
func WithTimeout(d time.Duration) Option {
	return func(t *Translator) { t.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Translator) { t.client = c }
}

// New creates a Translator. key must be non-empty.
func New(key string, opts ...Option) (*Translator, error) {
	if key == "" {
		return nil, errors.New("azure: subscription key must not be empty")
	}
	t := &Translator{
		key:      key,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

type requestItem struct {
	Text string `json:"text"`
}

type responseItem struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Translate implements [translate.Translator].
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	body, err := json.Marshal([]requestItem{{Text: text}})
	if err != nil {
		return "", translate.NewError(providerName, translate.KindMalformed, err)
	}

	q := url.Values{}
	q.Set("api-version", apiVersion)
	q.Set("to", targetLang)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/translate?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", translate.NewError(providerName, translate.KindNetwork, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	if t.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", translate.NewError(providerName, translate.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		return "", translate.NewError(providerName, translate.KindForStatus(resp.StatusCode),
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var out []responseItem
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", translate.NewError(providerName, translate.KindMalformed, fmt.Errorf("decode response: %w", err))
	}
	if len(out) == 0 || len(out[0].Translations) == 0 {
		return "", translate.NewError(providerName, translate.KindMalformed, errors.New("response has no translations"))
	}
	return out[0].Translations[0].Text, nil
}
