// Package discord provides an [audio.Device] that listens to a Discord voice
// channel through bwmarrin/discordgo.
//
// Discord delivers one Opus stream per speaker (SSRC). The device follows a
// single speaker at a time: the first SSRC heard holds the floor until it has
// been silent for the hold duration, after which the next speaker takes over.
// Audio is decoded with gopus, downmixed to mono, resampled to the pipeline
// rate and cut into fixed-size frames.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

const (
	defaultSampleRate = 16000
	defaultBlockSize  = 8000
	defaultHold       = time.Second
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Device joins a voice channel on every [Device.Open] call. It requires an
// active *discordgo.Session owned by the caller.
type Device struct {
	session   *discordgo.Session
	guildID   string
	channelID string

	sampleRate int
	blockSize  int
	hold       time.Duration
	logger     *slog.Logger

	join       func(guildID, channelID string) (*discordgo.VoiceConnection, error)
	newDecoder func() (packetDecoder, error)
}

// Option is a functional option for [Device].
type Option func(*Device)

// WithSampleRate sets the output rate in Hz.
func WithSampleRate(rate int) Option {
	return func(d *Device) { d.sampleRate = rate }
}

// WithBlockSize sets the number of samples per frame.
func WithBlockSize(n int) Option {
	return func(d *Device) { d.blockSize = n }
}

// WithSpeakerHold sets how long a silent speaker keeps the floor.
func WithSpeakerHold(hold time.Duration) Option {
	return func(d *Device) { d.hold = hold }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// New returns a Device for the given guild and voice channel.
func New(session *discordgo.Session, guildID, channelID string, opts ...Option) (*Device, error) {
	if session == nil {
		return nil, fmt.Errorf("discord: session must not be nil")
	}
	if guildID == "" || channelID == "" {
		return nil, fmt.Errorf("discord: guild and channel ID are required")
	}
	d := &Device{
		session:    session,
		guildID:    guildID,
		channelID:  channelID,
		sampleRate: defaultSampleRate,
		blockSize:  defaultBlockSize,
		hold:       defaultHold,
		logger:     slog.Default(),
		newDecoder: newOpusDecoder,
	}
	d.join = func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
		// mute=true: we never transmit. deaf=false: we need to receive.
		return d.session.ChannelVoiceJoin(guildID, channelID, true, false)
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context, sink audio.Sink) (audio.Stream, error) {
	vc, err := d.join(d.guildID, d.channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: discord: join voice channel %q: %w", audio.ErrDevice, d.channelID, err)
	}
	s := d.newStream(vc.OpusRecv, vc.Disconnect, sink)
	go s.recvLoop(ctx)
	d.logger.Info("discord: listening to voice channel", "guild", d.guildID, "channel", d.channelID)
	return s, nil
}

func (d *Device) newStream(recv <-chan *discordgo.Packet, disconnect func() error, sink audio.Sink) *stream {
	return &stream{
		StreamState: audio.NewStreamState(),
		device:      d,
		recv:        recv,
		disconnect:  disconnect,
		chunker:     audio.NewChunker(d.blockSize, d.sampleRate, sink),
		decoders:    make(map[uint32]packetDecoder),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

type stream struct {
	*audio.StreamState

	device     *Device
	recv       <-chan *discordgo.Packet
	disconnect func() error
	chunker    *audio.Chunker

	// Owned by recvLoop.
	decoders  map[uint32]packetDecoder
	speaker   uint32
	lastHeard time.Time

	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *stream) recvLoop(ctx context.Context) {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Finish(nil)
			return
		case pkt, ok := <-s.recv:
			if !ok {
				s.Finish(fmt.Errorf("%w: discord: voice connection closed", audio.ErrDevice))
				return
			}
			if pkt != nil {
				s.handlePacket(pkt, time.Now())
			}
		}
	}
}

// handlePacket applies the floor policy and forwards the speaker's audio.
func (s *stream) handlePacket(pkt *discordgo.Packet, now time.Time) {
	if s.speaker != pkt.SSRC {
		if s.speaker != 0 && now.Sub(s.lastHeard) < s.device.hold {
			return
		}
		if s.speaker != 0 {
			s.device.logger.Debug("discord: speaker changed", "from", s.speaker, "to", pkt.SSRC)
		}
		s.speaker = pkt.SSRC
		s.chunker.Reset()
	}
	s.lastHeard = now

	dec, ok := s.decoders[pkt.SSRC]
	if !ok {
		var err error
		dec, err = s.device.newDecoder()
		if err != nil {
			s.device.logger.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "err", err)
			return
		}
		s.decoders[pkt.SSRC] = dec
	}

	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		s.device.logger.Warn("discord: dropping undecodable packet", "ssrc", pkt.SSRC, "err", err)
		return
	}
	mono := audio.StereoToMono(pcm)
	s.chunker.Write(audio.Resample(mono, opusSampleRate, s.device.sampleRate))
}

// Close implements [audio.Stream].
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.exited
		if s.disconnect != nil {
			s.closeErr = s.disconnect()
		}
		s.Finish(nil)
	})
	return s.closeErr
}
