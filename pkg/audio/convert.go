package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/MrWong99/lingualive/pkg/types"
)

// BytesToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToFloat32 normalises samples to [-1.0, 1.0).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples in int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// StereoToMono averages interleaved L/R pairs. A trailing unpaired sample is
// ignored.
func StereoToMono(interleaved []int16) []int16 {
	out := make([]int16, len(interleaved)/2)
	for i := range out {
		out[i] = int16((int32(interleaved[i*2]) + int32(interleaved[i*2+1])) / 2)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates match or
// either rate is not positive.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := s0
		if idx+1 < len(samples) {
			s1 = float64(samples[idx+1])
		}
		out[i] = int16(s0*(1-frac) + s1*frac)
	}
	return out
}

// Chunker cuts an arbitrary-length sample stream into fixed-size frames.
// It is not safe for concurrent use; each capture goroutine owns one.
type Chunker struct {
	blockSize  int
	sampleRate int
	sink       Sink
	buf        []int16
	now        func() time.Time
}

// NewChunker returns a chunker that calls sink with frames of exactly
// blockSize samples at sampleRate.
func NewChunker(blockSize, sampleRate int, sink Sink) *Chunker {
	return &Chunker{
		blockSize:  blockSize,
		sampleRate: sampleRate,
		sink:       sink,
		buf:        make([]int16, 0, blockSize),
		now:        time.Now,
	}
}

// Write appends samples and emits every completed block.
func (c *Chunker) Write(samples []int16) {
	for len(samples) > 0 {
		n := min(c.blockSize-len(c.buf), len(samples))
		c.buf = append(c.buf, samples[:n]...)
		samples = samples[n:]
		if len(c.buf) == c.blockSize {
			frame := types.AudioFrame{
				Samples:    c.buf,
				SampleRate: c.sampleRate,
				Captured:   c.now(),
			}
			c.buf = make([]int16, 0, c.blockSize)
			c.sink(frame)
		}
	}
}

// Pending returns the number of buffered samples not yet emitted.
func (c *Chunker) Pending() int { return len(c.buf) }

// Reset discards buffered samples.
func (c *Chunker) Reset() { c.buf = c.buf[:0] }
