// Package deepgram provides a decoder backed by the Deepgram streaming
// WebSocket API.
//
// Frames are written to the socket as raw linear16 PCM. Results arrive
// asynchronously on a read goroutine and are handed back from subsequent Feed
// calls, one hypothesis per call, in arrival order. Consecutive partials that
// pile up between two Feed calls collapse to the newest one.
//
// The socket is dialled lazily on the first Feed and closed by Reset, so every
// listening session starts on a fresh Deepgram stream.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/types"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	resultBuffer      = 64
	closeTimeout      = 2 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language (e.g. "en", "de").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the streaming endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithEndpointing sets the silence in milliseconds after which Deepgram
// finalises an utterance. Zero keeps the service default.
func WithEndpointing(ms int) Option {
	return func(p *Provider) { p.endpointingMs = ms }
}

// Compile-time interface assertion.
var _ decoder.Provider = (*Provider)(nil)

// Provider implements [decoder.Provider] backed by the Deepgram streaming API.
type Provider struct {
	apiKey        string
	model         string
	language      string
	endpoint      string
	endpointingMs int
}

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder implements [decoder.Provider]. No connection is made until the
// first frame is fed.
func (p *Provider) NewDecoder(_ context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	return &stream{url: wsURL, apiKey: p.apiKey}, nil
}

// buildURL constructs the streaming endpoint URL for cfg.
func (p *Provider) buildURL(cfg decoder.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	if p.endpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(p.endpointingMs))
	}
	for _, kw := range cfg.Keywords {
		q.Add("keywords", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of a Results event the decoder needs.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse converts a raw message into a hypothesis. It reports false
// for messages that carry no hypothesis (metadata, empty interims, garbage).
func parseResponse(data []byte) (decoder.Hypothesis, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return decoder.Hypothesis{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return decoder.Hypothesis{}, false
	}
	text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	if resp.IsFinal {
		return decoder.FinalOf(text), true
	}
	if text == "" {
		return decoder.Hypothesis{}, false
	}
	return decoder.PartialOf(text), true
}

// stream is a Deepgram-backed [decoder.Decoder]. Feed, Reset and Close are
// called from the pipeline goroutine only; the read goroutine communicates
// through results.
type stream struct {
	url    string
	apiKey string

	conn     *websocket.Conn
	results  chan decoder.Hypothesis
	readDone chan struct{}
	cancel   context.CancelFunc

	errMu   sync.Mutex
	readErr error

	pending []decoder.Hypothesis
}

// Feed implements [decoder.Decoder].
func (s *stream) Feed(ctx context.Context, frame types.AudioFrame) (decoder.Hypothesis, error) {
	if s.conn == nil {
		if err := s.dial(ctx); err != nil {
			return decoder.Hypothesis{}, err
		}
	}
	if err := s.conn.Write(ctx, websocket.MessageBinary, audio.Int16ToBytes(frame.Samples)); err != nil {
		return decoder.Hypothesis{}, fmt.Errorf("%w: deepgram: write audio: %w", decoder.ErrDecode, err)
	}

	s.collect()
	if len(s.pending) == 0 {
		select {
		case <-s.readDone:
			if err := s.err(); err != nil {
				return decoder.Hypothesis{}, fmt.Errorf("%w: deepgram: stream ended: %w", decoder.ErrDecode, err)
			}
		default:
		}
		return decoder.Hypothesis{}, nil
	}
	h := s.pending[0]
	s.pending = s.pending[1:]
	return h, nil
}

// collect moves every result that has already arrived into pending.
func (s *stream) collect() {
	for {
		select {
		case h := <-s.results:
			if n := len(s.pending); n > 0 && h.Kind == types.Partial && s.pending[n-1].Kind == types.Partial {
				s.pending[n-1] = h
				continue
			}
			s.pending = append(s.pending, h)
		default:
			return
		}
	}
}

func (s *stream) dial(ctx context.Context) error {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return fmt.Errorf("%w: deepgram: dial: %w", decoder.ErrDecode, err)
	}
	rctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.results = make(chan decoder.Hypothesis, resultBuffer)
	s.readDone = make(chan struct{})
	s.setErr(nil)
	go s.readLoop(rctx, conn, s.results, s.readDone)
	return nil
}

func (s *stream) readLoop(ctx context.Context, conn *websocket.Conn, results chan<- decoder.Hypothesis, done chan<- struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.setErr(err)
			}
			return
		}
		h, ok := parseResponse(msg)
		if !ok {
			continue
		}
		select {
		case results <- h:
		case <-ctx.Done():
			return
		}
	}
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	s.readErr = err
	s.errMu.Unlock()
}

func (s *stream) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// Reset implements [decoder.Decoder] by ending the Deepgram stream. Results
// still in flight belong to the old utterance and are discarded.
func (s *stream) Reset() {
	s.closeConn()
	s.pending = nil
}

// Close implements [decoder.Decoder].
func (s *stream) Close() error {
	s.closeConn()
	return nil
}

func (s *stream) closeConn() {
	if s.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	s.cancel()
	<-s.readDone
	_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.conn = nil
	s.results = nil
}
