package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the latest valid version of a config file and reports each
// content change to a callback. Editors that save by renaming a temp file
// over the original are handled because the parent directory is watched
// rather than the file. A periodic re-read covers filesystems without
// change notification.
type Watcher struct {
	path     string
	poll     time.Duration
	settle   time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu   sync.Mutex
	cur  *Config
	hash [sha256.Size]byte

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is re-read regardless of events.
// Defaults to 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithDebounce sets the quiet period after the last file event before the
// file is read. Defaults to 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// WithWatcherLogger sets the logger used for reload and error reports.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and starts watching it. It fails when the file is
// missing or invalid. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		poll:     5 * time.Second,
		settle:   100 * time.Millisecond,
		onChange: onChange,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.cur, w.hash = cfg, sum

	fw := w.subscribe()
	go w.run(fw)
	return w, nil
}

// Current returns the config most recently accepted.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// Stop ends watching. It blocks until the background goroutine has exited
// and may be called more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

// subscribe returns an fsnotify watcher on the config's directory, or nil
// when notifications are unavailable.
func (w *Watcher) subscribe() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("config watcher: no file notifications, polling only", "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		w.log.Warn("config watcher: no file notifications, polling only", "path", w.path, "err", err)
		return nil
	}
	return fw
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer close(w.stopped)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	tick := time.NewTicker(w.poll)
	defer tick.Stop()

	// Reset on every relevant event; fires once writes have settled.
	settled := time.NewTimer(time.Hour)
	settled.Stop()
	defer settled.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-events:
			if !ok {
				events, errs = nil, nil
				w.log.Warn("config watcher: file notifications ended, polling only")
				continue
			}
			if w.relevant(ev) {
				settled.Reset(w.settle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("config watcher: notification error", "err", err)
		case <-settled.C:
			w.reload()
		case <-tick.C:
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	return filepath.Clean(ev.Name) == w.path &&
		ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename)
}

// reload re-reads the file. Unreadable or invalid content is logged and the
// current config stays in place. Identical content is ignored.
func (w *Watcher) reload() {
	cfg, sum, err := w.read()
	if err != nil {
		w.log.Warn("config watcher: ignoring update", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if sum == w.hash {
		w.mu.Unlock()
		return
	}
	old := w.cur
	w.cur, w.hash = cfg, sum
	w.mu.Unlock()

	w.log.Info("config watcher: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, sum, err
	}
	cfg, err := load(bytes.NewReader(data), os.LookupEnv)
	if err != nil {
		return nil, sum, err
	}
	return cfg, sha256.Sum256(data), nil
}
