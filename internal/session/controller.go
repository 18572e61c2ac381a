// Package session owns the single global listening session.
//
// A [Controller] moves between two states, [StateStopped] and
// [StateListening]. Every transition runs under one mutex that is held for
// the whole transition, so a start racing a stop always observes a settled
// state. Start and Stop are idempotent.
//
// The decoder is created lazily on the first start and kept across sessions;
// Stop resets it. A decoder that failed during recognition is closed and a
// fresh one is created on the next start.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/internal/broadcast"
	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/internal/pipeline"
	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Status texts sent to clients on transitions.
const (
	StatusStarted = "listening started"
	StatusStopped = "listening stopped"
)

const defaultQueueSize = 64

// State is the listening state of the session.
type State int

const (
	StateStopped State = iota
	StateListening
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the dependencies of a [Controller].
type Config struct {
	// Device is opened on every start.
	Device audio.Device

	// Decoders builds the recognition engine on first use.
	Decoders decoder.Provider

	// DecoderConfig is passed to Decoders.
	DecoderConfig decoder.Config

	// Translation is shared by every session and holds the target language.
	Translation *pipeline.TranslationStage

	// Publisher receives status, transcript and error messages.
	Publisher pipeline.Publisher

	// QueueSize is the frame queue capacity. Defaults to 64.
	QueueSize int

	// Corrector, if set, rewrites final transcripts.
	Corrector pipeline.Corrector

	// StopWhenIdle stops listening when the last client leaves.
	StopWhenIdle bool

	// AutoStart starts listening when the first client connects.
	AutoStart bool

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// run is one listening session.
type run struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	stream    audio.Stream

	// done is closed when the pipeline loop has returned; err holds its result.
	done chan struct{}
	err  error
}

// Controller is the session state machine. All exported methods are safe for
// concurrent use.
type Controller struct {
	cfg     Config
	metrics *observe.Metrics
	logger  *slog.Logger
	queue   *audio.FrameQueue

	mu      sync.Mutex
	state   State
	dec     decoder.Decoder
	recog   *pipeline.RecognitionStage
	current *run

	// decErr is the last decoder creation or recognition failure, cleared
	// when a decoder is created.
	decErr error
}

// NewController returns a stopped Controller.
func NewController(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Device == nil {
		errs = append(errs, errors.New("device is required"))
	}
	if cfg.Decoders == nil {
		errs = append(errs, errors.New("decoder provider is required"))
	}
	if cfg.Translation == nil {
		errs = append(errs, errors.New("translation stage is required"))
	}
	if cfg.Publisher == nil {
		errs = append(errs, errors.New("publisher is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	c := &Controller{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if c.metrics == nil {
		c.metrics = observe.Discard()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.queue = audio.NewFrameQueue(cfg.QueueSize, audio.WithQueueLogger(c.logger))
	return c, nil
}

// State reports the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether the session is listening.
func (c *Controller) Listening() bool { return c.State() == StateListening }

// StatusMessage describes the current state for a newly connected client.
func (c *Controller) StatusMessage() types.OutboundMessage {
	if c.Listening() {
		return types.StatusMessage(StatusStarted, true)
	}
	return types.StatusMessage(StatusStopped, false)
}

// RecognitionErr returns the last decoder load or recognition failure, or nil
// once a decoder has been created successfully.
func (c *Controller) RecognitionErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decErr
}

// SetLanguage changes the target language for subsequent finals.
func (c *Controller) SetLanguage(lang string) {
	c.cfg.Translation.SetLanguage(lang)
	c.logger.Info("session: target language changed", "lang", lang)
}

// Language returns the current target language.
func (c *Controller) Language() string { return c.cfg.Translation.Language() }

// Start begins listening. It is a no-op while already listening. On failure
// the session stays stopped, an error message is published and the error is
// returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateListening {
		return nil
	}

	if c.dec == nil {
		dec, err := c.cfg.Decoders.NewDecoder(ctx, c.cfg.DecoderConfig)
		if err != nil {
			c.decErr = err
			c.cfg.Publisher.Publish(types.ErrorMessage(fmt.Sprintf("could not load speech recognition: %v", err)))
			return fmt.Errorf("session: create decoder: %w", err)
		}
		c.dec = dec
		c.decErr = nil
		c.recog = pipeline.NewRecognitionStage(dec,
			pipeline.WithCorrector(c.cfg.Corrector),
			pipeline.WithRecognitionMetrics(c.metrics),
		)
	}

	id := observe.NewCorrelationID()
	runCtx, cancel := context.WithCancel(observe.WithCorrelationID(context.Background(), id))
	c.queue.Drain()

	stream, err := c.cfg.Device.Open(runCtx, func(f types.AudioFrame) {
		dropped := c.queue.Push(f)
		c.metrics.RecordFrame(runCtx, dropped)
	})
	if err != nil {
		cancel()
		c.cfg.Publisher.Publish(types.ErrorMessage(fmt.Sprintf("could not open audio device: %v", err)))
		return fmt.Errorf("session: open device: %w", err)
	}

	r := &run{
		id:        id,
		startedAt: time.Now(),
		cancel:    cancel,
		stream:    stream,
		done:      make(chan struct{}),
	}
	p := pipeline.New(c.queue, c.recog, c.cfg.Translation, c.cfg.Publisher,
		pipeline.WithLogger(c.logger.With("session_id", id)),
		pipeline.WithMetrics(c.metrics),
	)
	go func() {
		defer close(r.done)
		r.err = p.Run(runCtx)
	}()
	go c.watch(r)

	c.current = r
	c.setState(runCtx, StateListening)
	c.cfg.Publisher.Publish(types.StatusMessage(StatusStarted, true))
	c.logger.Info("session started", "session_id", id)
	return nil
}

// Stop ends listening. It is a no-op while stopped.
func (c *Controller) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return nil
	}
	return c.stopLocked(nil)
}

// watch ends the session when the device is lost or recognition fails.
func (c *Controller) watch(r *run) {
	var cause error
	select {
	case <-r.done:
		cause = r.err
	case <-r.stream.Done():
		cause = r.stream.Err()
	}
	if cause == nil {
		// Ended by Stop or by a clean close.
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != r {
		return
	}
	_ = c.stopLocked(cause)
}

// stopLocked tears down the current run. cause is nil for a requested stop.
// The caller holds c.mu.
func (c *Controller) stopLocked(cause error) error {
	r := c.current
	r.cancel()
	closeErr := r.stream.Close()
	<-r.done
	c.queue.Drain()
	c.recog.Reset()
	c.cfg.Translation.Reset()
	c.current = nil

	ctx := observe.WithCorrelationID(context.Background(), r.id)
	c.setState(ctx, StateStopped)

	log := c.logger.With("session_id", r.id, "duration", time.Since(r.startedAt).Round(time.Millisecond))
	switch {
	case cause == nil:
		log.Info("session stopped")
	case errors.Is(cause, audio.ErrDevice):
		log.Warn("session: audio device lost", "err", cause)
		c.cfg.Publisher.Publish(types.ErrorMessage(fmt.Sprintf("audio device lost: %v", cause)))
	default:
		log.Error("session: recognition failed", "err", cause)
		c.cfg.Publisher.Publish(types.ErrorMessage(fmt.Sprintf("speech recognition failed: %v", cause)))
		if err := c.dec.Close(); err != nil {
			log.Warn("session: close decoder", "err", err)
		}
		c.dec = nil
		c.recog = nil
		c.decErr = cause
	}
	c.cfg.Publisher.Publish(types.StatusMessage(StatusStopped, false))

	if closeErr != nil {
		return fmt.Errorf("session: close device: %w", closeErr)
	}
	return nil
}

func (c *Controller) setState(ctx context.Context, s State) {
	c.state = s
	c.metrics.RecordSessionTransition(ctx, s.String())
}

// ClientsChanged applies the idle policies. It is meant to be installed as a
// broadcaster membership hook.
func (c *Controller) ClientsChanged(count int, reason broadcast.Reason) {
	ctx := context.Background()
	switch {
	case reason == broadcast.ReasonJoined && count == 1 && c.cfg.AutoStart:
		if err := c.Start(ctx); err != nil {
			c.logger.Warn("session: auto start failed", "err", err)
		}
	case reason != broadcast.ReasonJoined && count == 0 && c.cfg.StopWhenIdle:
		if err := c.Stop(ctx); err != nil {
			c.logger.Warn("session: idle stop failed", "err", err)
		}
	}
}

// Close stops the session and releases the decoder.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.state == StateListening {
		errs = append(errs, c.stopLocked(nil))
	}
	if c.dec != nil {
		errs = append(errs, c.dec.Close())
		c.dec = nil
		c.recog = nil
	}
	return errors.Join(errs...)
}
