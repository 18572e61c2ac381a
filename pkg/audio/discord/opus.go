package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice carries 48 kHz stereo Opus in 20 ms packets.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	opusFrameSize  = opusSampleRate * 20 / 1000 // samples per channel
)

// packetDecoder turns one Opus packet into interleaved stereo PCM.
type packetDecoder interface {
	decode(opus []byte) ([]int16, error)
}

// opusDecoder keeps gopus state for a single SSRC. Opus is stateful, so every
// speaker needs its own decoder.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (packetDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) decode(opus []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("discord: opus decode: %w", err)
	}
	return pcm, nil
}
