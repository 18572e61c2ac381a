package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
	"github.com/MrWong99/lingualive/pkg/types"
)

const (
	defaultMaxInFlight = 4
	defaultTimeout     = 10 * time.Second
)

// Publisher receives outbound messages. [broadcast.Broadcaster] implements
// it; Publish must not block for long because it is called with the
// sequencer lock held.
type Publisher interface {
	Publish(msg types.OutboundMessage)
}

// TranslationOption configures a [TranslationStage].
type TranslationOption func(*TranslationStage)

// WithMaxInFlight bounds the number of concurrent translation requests.
func WithMaxInFlight(n int) TranslationOption {
	return func(s *TranslationStage) {
		if n > 0 {
			s.maxInFlight = int64(n)
		}
	}
}

// WithTimeout bounds each translation request.
func WithTimeout(d time.Duration) TranslationOption {
	return func(s *TranslationStage) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLanguage sets the initial target language.
func WithLanguage(lang string) TranslationOption {
	return func(s *TranslationStage) { s.lang = lang }
}

// WithTranslationLogger sets the logger.
func WithTranslationLogger(l *slog.Logger) TranslationOption {
	return func(s *TranslationStage) { s.logger = l }
}

// WithTranslationMetrics records latency and outcome per request.
func WithTranslationMetrics(m *observe.Metrics) TranslationOption {
	return func(s *TranslationStage) { s.metrics = m }
}

// TranslationStage issues one translation per FINAL and publishes the
// outcomes strictly in submission order.
//
// Requests overlap: a slow translation never holds up recognition, and a
// fast later one is parked until every earlier one has been released.
// Failures are published as error messages in the failed utterance's slot,
// so a failed translation never blocks its successors.
type TranslationStage struct {
	tr          translate.Translator
	pub         Publisher
	maxInFlight int64
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	lang    string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	next    uint64 // next sequence number to assign
	release uint64 // next sequence number to publish
	parked  map[uint64]types.OutboundMessage
}

// NewTranslationStage returns a stage translating through tr and publishing
// to pub.
func NewTranslationStage(tr translate.Translator, pub Publisher, opts ...TranslationOption) *TranslationStage {
	s := &TranslationStage{
		tr:          tr,
		pub:         pub,
		maxInFlight: defaultMaxInFlight,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
		metrics:     observe.Discard(),
		parked:      make(map[uint64]types.OutboundMessage),
	}
	for _, o := range opts {
		o(s)
	}
	s.sem = semaphore.NewWeighted(s.maxInFlight)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// SetLanguage changes the target language for FINALs submitted from now on.
func (s *TranslationStage) SetLanguage(lang string) {
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

// Language returns the current target language.
func (s *TranslationStage) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// Submit schedules the translation of one FINAL. The target language is the
// one active at the moment of the call. Submit never blocks on the
// translator.
func (s *TranslationStage) Submit(ctx context.Context, text string) {
	s.mu.Lock()
	seq := s.next
	s.next++
	gen := s.gen
	lang := s.lang
	base := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		msg := s.translate(observe.WithCorrelationID(base, observe.CorrelationID(ctx)), text, lang)
		s.complete(gen, seq, msg)
	}()
}

func (s *TranslationStage) translate(ctx context.Context, text, lang string) types.OutboundMessage {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return types.ErrorMessage(fmt.Sprintf("translation cancelled: %v", err))
	}
	defer s.sem.Release(1)

	ctx, span := observe.StartSpan(ctx, "pipeline.translate")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.tr.Translate(ctx, text, lang)
	elapsed := time.Since(start)
	if err == nil && types.IsBlank(out) {
		err = translate.NewError("pipeline", translate.KindMalformed, errors.New("empty translation"))
	}
	if err != nil {
		kind := translate.KindOf(err)
		s.metrics.RecordTranslation(ctx, lang, kind.String(), elapsed)
		var te *translate.Error
		provider := "translator"
		if errors.As(err, &te) {
			provider = te.Provider
		}
		s.metrics.RecordProviderError(ctx, provider, kind.String())
		span.RecordError(err)
		observe.Logger(ctx).Warn("pipeline: translation failed", "lang", lang, "kind", kind.String(), "err", err)
		return types.ErrorMessage(fmt.Sprintf("translation failed (%s): %v", kind, err))
	}
	s.metrics.RecordTranslation(ctx, lang, "ok", elapsed)
	return types.TranslationMessage(types.TranslationResult{Source: text, Text: out, Lang: lang})
}

// complete parks msg in its slot and releases every consecutive slot that is
// ready. Results from an older generation are discarded.
func (s *TranslationStage) complete(gen, seq uint64, msg types.OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("pipeline: discarding translation from previous session", "seq", seq)
		return
	}
	s.parked[seq] = msg
	for {
		m, ok := s.parked[s.release]
		if !ok {
			return
		}
		delete(s.parked, s.release)
		s.release++
		s.pub.Publish(m)
	}
}

// Pending returns the number of submitted translations not yet published.
func (s *TranslationStage) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.next - s.release)
}

// Reset cancels every in-flight request and discards their results. It does
// not wait for the request goroutines to return.
func (s *TranslationStage) Reset() {
	s.mu.Lock()
	s.cancel()
	s.gen++
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.release = s.next
	clear(s.parked)
	s.mu.Unlock()
}

// Close resets the stage and waits for every request goroutine to exit.
func (s *TranslationStage) Close() {
	s.Reset()
	s.wg.Wait()
}
