// Package audio defines the capture side of the LinguaLive pipeline.
//
// The two primary abstractions are:
//
//   - [Device] opens an audio input and starts delivering fixed-size frames to a sink.
//   - [Stream] represents the running capture and reports when it ends.
//
// A [FrameQueue] sits between the device goroutine and the pipeline consumer.
// Devices only ever call [FrameQueue.Push] from their capture goroutine, so
// the pipeline never blocks the hardware reader.
//
// Implementations live in sub-packages (audio/capture, audio/discord).
package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/lingualive/pkg/types"
)

// ErrDevice marks failures to open or keep reading an audio device. It is
// fatal to the current listening attempt and is never retried automatically.
var ErrDevice = errors.New("audio: device error")

// Sink receives completed frames. It is called from the device's capture
// goroutine and must not block.
type Sink func(types.AudioFrame)

// Device opens an audio input.
//
// Implementations must be safe for concurrent use, but callers open at most
// one stream per device at a time because the device holds exclusive hardware
// access while a stream is active.
type Device interface {
	// Open starts capture and calls sink for every completed block. Failing to
	// open the device returns an error wrapping [ErrDevice]. The returned
	// stream runs until Close is called, ctx is cancelled, or the device is lost.
	Open(ctx context.Context, sink Sink) (Stream, error)
}

// Stream is a running capture.
type Stream interface {
	// Done is closed when capture has ended for any reason.
	Done() <-chan struct{}

	// Err returns the reason capture ended. It is nil while the stream is
	// running and after a clean Close.
	Err() error

	// Close stops capture and releases the device. It blocks until the capture
	// goroutine has exited. Safe to call more than once.
	Close() error
}

// StreamState tracks the end of a capture. Devices embed it to implement the
// Done and Err halves of [Stream].
type StreamState struct {
	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

// NewStreamState returns a running state.
func NewStreamState() *StreamState {
	return &StreamState{done: make(chan struct{})}
}

// Finish records err as the end reason and closes Done. Only the first call
// has any effect.
func (s *StreamState) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Done implements [Stream].
func (s *StreamState) Done() <-chan struct{} { return s.done }

// Err implements [Stream].
func (s *StreamState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
