package discord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/types"
	"github.com/bwmarrin/discordgo"
)

// fakeDecoder returns one 20 ms stereo packet where every sample equals the
// first payload byte, so tests can tell speakers apart.
type fakeDecoder struct{}

func (fakeDecoder) decode(opus []byte) ([]int16, error) {
	if len(opus) == 0 {
		return nil, errors.New("empty packet")
	}
	pcm := make([]int16, opusFrameSize*opusChannels)
	for i := range pcm {
		pcm[i] = int16(opus[0])
	}
	return pcm, nil
}

type frameSink struct {
	mu     sync.Mutex
	frames []types.AudioFrame
}

func (f *frameSink) push(fr types.AudioFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
}

func (f *frameSink) snapshot() []types.AudioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.AudioFrame(nil), f.frames...)
}

func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	opts = append([]Option{
		WithBlockSize(320),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	d, err := New(&discordgo.Session{}, "guild-1", "voice-1", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.newDecoder = func() (packetDecoder, error) { return fakeDecoder{}, nil }
	return d
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "g", "c"); err == nil {
		t.Error("New(nil session) succeeded")
	}
	if _, err := New(&discordgo.Session{}, "", "c"); err == nil {
		t.Error("New(empty guild) succeeded")
	}
}

func TestOpen_JoinFailureIsDeviceError(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	d.join = func(string, string) (*discordgo.VoiceConnection, error) {
		return nil, errors.New("missing permissions")
	}
	_, err := d.Open(context.Background(), func(types.AudioFrame) {})
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Open() error = %v, want ErrDevice", err)
	}
}

func TestStream_DownmixesAndResamples(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	var sink frameSink
	s := d.newStream(nil, nil, sink.push)

	// One 20 ms packet at 48 kHz becomes 320 mono samples at 16 kHz.
	s.handlePacket(&discordgo.Packet{SSRC: 7, Opus: []byte{9}}, time.Now())

	frames := sink.snapshot()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if got := len(frames[0].Samples); got != 320 {
		t.Errorf("samples = %d, want 320", got)
	}
	if frames[0].Samples[0] != 9 || frames[0].SampleRate != 16000 {
		t.Errorf("frame = sample %d at %d Hz", frames[0].Samples[0], frames[0].SampleRate)
	}
}

func TestStream_SpeakerFloor(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t, WithSpeakerHold(500*time.Millisecond))
	var sink frameSink
	s := d.newStream(nil, nil, sink.push)

	t0 := time.Now()
	s.handlePacket(&discordgo.Packet{SSRC: 1, Opus: []byte{1}}, t0)
	// Second speaker talks over the first within the hold window: ignored.
	s.handlePacket(&discordgo.Packet{SSRC: 2, Opus: []byte{2}}, t0.Add(100*time.Millisecond))
	// After the hold expires the second speaker takes over.
	s.handlePacket(&discordgo.Packet{SSRC: 2, Opus: []byte{2}}, t0.Add(time.Second))

	frames := sink.snapshot()
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].Samples[0] != 1 || frames[1].Samples[0] != 2 {
		t.Errorf("speakers = %d, %d; want 1, 2", frames[0].Samples[0], frames[1].Samples[0])
	}
}

func TestStream_RecvClosedIsDeviceLoss(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	recv := make(chan *discordgo.Packet, 4)
	s := d.newStream(recv, func() error { return nil }, func(types.AudioFrame) {})
	go s.recvLoop(context.Background())

	close(recv)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end when voice connection closed")
	}
	if !errors.Is(s.Err(), audio.ErrDevice) {
		t.Errorf("Err() = %v, want ErrDevice", s.Err())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStream_CloseDisconnectsOnce(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	var disconnects int
	s := d.newStream(make(chan *discordgo.Packet), func() error {
		disconnects++
		return nil
	}, func(types.AudioFrame) {})
	go s.recvLoop(context.Background())

	for range 3 {
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}
	if s.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", s.Err())
	}
}
