// Package broadcast fans pipeline output out to every connected client.
//
// [Broadcaster.Publish] encodes a message once and enqueues it for every
// registered client inside one critical section, so all clients observe the
// same message order. Each client owns a bounded queue drained by its own
// writer goroutine; a client whose queue overflows or whose write fails is
// dropped without affecting the others. Nothing is replayed to clients that
// register after a message was published.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lingualive/pkg/types"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// ErrClosed is returned by [Broadcaster.Register] after [Broadcaster.Close].
var ErrClosed = errors.New("broadcast: broadcaster closed")

// Client is one connected browser.
type Client interface {
	// ID identifies the client in logs.
	ID() string

	// Send writes one encoded message. It is only ever called from the
	// client's writer goroutine.
	Send(ctx context.Context, data []byte) error

	// Close terminates the connection. reason is shown to the peer where the
	// transport supports it.
	Close(reason string) error
}

// Reason tells a membership hook why the client set changed.
type Reason int

const (
	ReasonJoined Reason = iota + 1
	ReasonLeft
	ReasonDropped
)

// String returns the label used in logs and metrics.
func (r Reason) String() string {
	switch r {
	case ReasonJoined:
		return "joined"
	case ReasonLeft:
		return "left"
	case ReasonDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Option configures a [Broadcaster].
type Option func(*Broadcaster)

// WithQueueSize sets the per-client queue length.
func WithQueueSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithWriteTimeout bounds every client write.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.writeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

// WithMembershipHook registers fn to be called after every change of the
// client set with the new count. fn runs without the broadcaster lock held
// and may call back into the broadcaster. Joins, departures and [Close] run
// fn on the caller's goroutine. Drops run it on a goroutine of their own,
// never on one inside [Broadcaster.Publish].
func WithMembershipHook(fn func(count int, reason Reason)) Option {
	return func(b *Broadcaster) { b.hooks = append(b.hooks, fn) }
}

type member struct {
	client Client
	queue  chan []byte
	done   chan struct{}
	exited chan struct{}
}

// Broadcaster is the set of live clients. It is safe for concurrent use.
type Broadcaster struct {
	queueSize    int
	writeTimeout time.Duration
	logger       *slog.Logger
	hooks        []func(int, Reason)

	mu      sync.Mutex
	members map[Client]*member
	closed  bool
}

// New returns an empty Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
		members:      make(map[Client]*member),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register adds c to the set and starts its writer. greeting, if non-empty,
// is queued to c alone before any later broadcast.
func (b *Broadcaster) Register(c Client, greeting ...types.OutboundMessage) error {
	frames := make([][]byte, 0, len(greeting))
	for _, msg := range greeting {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("broadcast: encode greeting: %w", err)
		}
		frames = append(frames, data)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, dup := b.members[c]; dup {
		b.mu.Unlock()
		return fmt.Errorf("broadcast: client %s already registered", c.ID())
	}
	m := &member{
		client: c,
		queue:  make(chan []byte, b.queueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, f := range frames {
		select {
		case m.queue <- f:
		default:
		}
	}
	b.members[c] = m
	n := len(b.members)
	b.mu.Unlock()

	go b.writeLoop(m)
	b.logger.Debug("broadcast: client registered", "client", c.ID(), "clients", n)
	b.notify(n, ReasonJoined)
	return nil
}

// Unregister removes c. Messages still queued for it are discarded. It is a
// no-op for unknown clients. The connection itself is not closed.
func (b *Broadcaster) Unregister(c Client) {
	if b.remove(c) {
		b.notify(b.Len(), ReasonLeft)
	}
}

// Publish delivers msg to every registered client.
func (b *Broadcaster) Publish(msg types.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast: encode message", "type", msg.Type, "err", err)
		return
	}

	var evicted []*member
	b.mu.Lock()
	for c, m := range b.members {
		select {
		case m.queue <- data:
		default:
			delete(b.members, c)
			evicted = append(evicted, m)
		}
	}
	b.mu.Unlock()

	// Callers of Publish may hold locks that membership hooks take, so the
	// disconnect and its hooks run on their own goroutine.
	for _, m := range evicted {
		close(m.done)
		b.logger.Warn("broadcast: dropping slow client", "client", m.client.ID())
		go b.disconnect(m.client, "too slow")
	}
}

// Len returns the number of registered clients.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

// Close closes every client and rejects further registrations.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	members := b.members
	b.members = make(map[Client]*member)
	b.mu.Unlock()

	var errs []error
	for c, m := range members {
		close(m.done)
		<-m.exited
		if err := c.Close("server shutting down"); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.ID(), err))
		}
	}
	if len(members) > 0 {
		b.notify(0, ReasonLeft)
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) writeLoop(m *member) {
	defer close(m.exited)
	for {
		select {
		case <-m.done:
			return
		case data := <-m.queue:
			ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
			err := m.client.Send(ctx, data)
			cancel()
			if err != nil {
				b.logger.Debug("broadcast: write failed, dropping client", "client", m.client.ID(), "err", err)
				b.drop(m.client, "write failed")
				return
			}
		}
	}
}

// drop removes c and closes its connection.
func (b *Broadcaster) drop(c Client, reason string) {
	if b.remove(c) {
		b.disconnect(c, reason)
	}
}

// disconnect closes an already removed client and reports the drop.
func (b *Broadcaster) disconnect(c Client, reason string) {
	_ = c.Close(reason)
	b.notify(b.Len(), ReasonDropped)
}

func (b *Broadcaster) remove(c Client) bool {
	b.mu.Lock()
	m, ok := b.members[c]
	if ok {
		delete(b.members, c)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	close(m.done)
	return true
}

func (b *Broadcaster) notify(n int, reason Reason) {
	for _, fn := range b.hooks {
		fn(n, reason)
	}
}
