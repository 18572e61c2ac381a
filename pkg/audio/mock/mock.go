// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The mock records every Open call and exposes exported fields the test sets
// to control behaviour. Frames are injected by the test through the returned
// [Stream] so tests decide exactly when capture produces data.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	stream, _ := dev.Open(ctx, queue.Push)
//	dev.Last().Emit(frame)
//	dev.Last().Lose(errors.New("unplugged"))
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is wrapped with [audio.ErrDevice] and returned by Open.
	OpenErr error

	// Frames are emitted synchronously to the sink as soon as Open succeeds.
	Frames []types.AudioFrame

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	streams []*Stream
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context, sink audio.Sink) (audio.Stream, error) {
	d.mu.Lock()
	d.CallCountOpen++
	if d.OpenErr != nil {
		err := d.OpenErr
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", audio.ErrDevice, err)
	}
	s := &Stream{StreamState: audio.NewStreamState(), sink: sink}
	d.streams = append(d.streams, s)
	frames := d.Frames
	d.mu.Unlock()

	for _, f := range frames {
		sink(f)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Finish(nil)
		case <-s.Done():
		}
	}()
	return s, nil
}

// Last returns the most recently opened stream, or nil.
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Streams returns every stream opened so far.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Stream, len(d.streams))
	copy(out, d.streams)
	return out
}

// Stream is the [audio.Stream] returned by [Device.Open].
type Stream struct {
	*audio.StreamState

	mu     sync.Mutex
	sink   audio.Sink
	closed int
}

// Emit delivers f to the sink unless the stream has ended.
func (s *Stream) Emit(f types.AudioFrame) bool {
	select {
	case <-s.Done():
		return false
	default:
	}
	s.sink(f)
	return true
}

// Lose ends the stream as if the device had been unplugged.
func (s *Stream) Lose(err error) {
	s.Finish(fmt.Errorf("%w: %w", audio.ErrDevice, err))
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.Finish(nil)
	return nil
}

// CloseCount returns how many times Close was called.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
