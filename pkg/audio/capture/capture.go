// Package capture implements [audio.Device] on top of an external recorder
// process that writes raw signed 16-bit little-endian mono PCM to stdout.
//
// The default command is ALSA's arecord. Any recorder works as long as it
// honours the sample rate; e.g. ffmpeg with "-f s16le -ac 1 -ar {rate} -".
// The literal "{rate}" in any argument is replaced by the configured rate.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/types"
)

const (
	defaultSampleRate   = 16000
	defaultBlockSize    = 8000
	defaultStartupGrace = 300 * time.Millisecond
	stderrLimit         = 4096
	listTimeout         = 2 * time.Second
)

// DefaultCommand is the recorder used when no command is configured.
var DefaultCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"}

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Device starts one recorder process per [Device.Open] call.
type Device struct {
	command      []string
	sampleRate   int
	blockSize    int
	startupGrace time.Duration
	logger       *slog.Logger

	// withCancel derives the recorder's context.
	withCancel func(context.Context) (context.Context, context.CancelFunc)
}

// Option is a functional option for [Device].
type Option func(*Device)

// WithCommand sets the recorder command line. The first element is the binary.
func WithCommand(argv ...string) Option {
	return func(d *Device) {
		if len(argv) > 0 {
			d.command = argv
		}
	}
}

// WithSampleRate sets the capture rate in Hz.
func WithSampleRate(rate int) Option {
	return func(d *Device) { d.sampleRate = rate }
}

// WithBlockSize sets the number of samples per frame.
func WithBlockSize(n int) Option {
	return func(d *Device) { d.blockSize = n }
}

// WithStartupGrace sets how long Open waits for the recorder to either
// produce its first block or fail. Recorders that exit within this window
// cause Open to fail instead of returning a stream that ends immediately.
func WithStartupGrace(d time.Duration) Option {
	return func(dev *Device) { dev.startupGrace = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// New returns a Device. It does not start any process.
func New(opts ...Option) (*Device, error) {
	d := &Device{
		command:      DefaultCommand,
		sampleRate:   defaultSampleRate,
		blockSize:    defaultBlockSize,
		startupGrace: defaultStartupGrace,
		logger:       slog.Default(),
		withCancel:   context.WithCancel,
	}
	for _, o := range opts {
		o(d)
	}
	if d.sampleRate <= 0 {
		return nil, fmt.Errorf("capture: sample rate must be positive, got %d", d.sampleRate)
	}
	if d.blockSize <= 0 {
		return nil, fmt.Errorf("capture: block size must be positive, got %d", d.blockSize)
	}
	return d, nil
}

// Args returns the command line with the rate placeholder expanded.
func (d *Device) Args() []string {
	rate := strconv.Itoa(d.sampleRate)
	out := make([]string, len(d.command))
	for i, a := range d.command {
		out[i] = strings.ReplaceAll(a, "{rate}", rate)
	}
	return out
}

// LogDevices logs the resolved recorder binary and, for arecord, the
// capture hardware it can see. Failures are logged, never returned.
func (d *Device) LogDevices(ctx context.Context) {
	bin := d.command[0]
	path, err := exec.LookPath(bin)
	if err != nil {
		d.logger.Warn("capture: recorder not found", "command", bin, "err", err)
		return
	}
	d.logger.Info("capture: using recorder", "path", path, "sample_rate", d.sampleRate, "block_size", d.blockSize)
	if filepath.Base(path) != "arecord" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-l").CombinedOutput()
	if err != nil {
		d.logger.Warn("capture: list capture devices", "err", err)
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.HasPrefix(line, "card ") {
			d.logger.Info("capture: available device", "device", strings.TrimSpace(line))
		}
	}
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context, sink audio.Sink) (audio.Stream, error) {
	args := d.Args()
	runCtx, cancel := d.withCancel(ctx)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: capture: stdout pipe: %w", audio.ErrDevice, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: capture: start %q: %w", audio.ErrDevice, args[0], err)
	}

	s := &stream{
		StreamState: audio.NewStreamState(),
		cancel:      cancel,
		exited:      make(chan struct{}),
	}
	firstBlock := make(chan struct{})
	go s.readLoop(runCtx, cmd, stdout, stderr, d, sink, firstBlock)

	d.logger.Info("capture: recorder started", "command", strings.Join(args, " "), "pid", cmd.Process.Pid)

	grace := time.NewTimer(d.startupGrace)
	defer grace.Stop()
	select {
	case <-firstBlock:
	case <-grace.C:
	case <-s.exited:
		select {
		case <-firstBlock:
		default:
			cancel()
			return nil, s.Err()
		}
	}
	return s, nil
}

type stream struct {
	*audio.StreamState

	cancel    context.CancelFunc
	exited    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	closing bool
}

func (s *stream) readLoop(runCtx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *limitedBuffer, d *Device, sink audio.Sink, firstBlock chan struct{}) {
	defer close(s.exited)

	raw := make([]byte, d.blockSize*2)
	signalled := false
	var readErr error
	for {
		if _, err := io.ReadFull(stdout, raw); err != nil {
			readErr = err
			break
		}
		sink(types.AudioFrame{
			Samples:    audio.BytesToInt16(raw),
			SampleRate: d.sampleRate,
			Captured:   time.Now(),
		})
		if !signalled {
			close(firstBlock)
			signalled = true
		}
	}

	waitErr := cmd.Wait()
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing || runCtx.Err() != nil {
		s.Finish(nil)
		return
	}

	cause := errors.Join(readErr, waitErr)
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		cause = fmt.Errorf("%w (stderr: %s)", cause, msg)
	}
	d.logger.Warn("capture: recorder ended", "err", cause)
	s.Finish(fmt.Errorf("%w: capture: recorder ended: %w", audio.ErrDevice, cause))
}

// Close implements [audio.Stream].
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.cancel()
		<-s.exited
	})
	return nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
