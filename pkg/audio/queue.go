package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/lingualive/pkg/types"
)

const defaultWarnInterval = 5 * time.Second

// FrameQueue is a bounded FIFO of audio frames with a single producer and a
// single consumer.
//
// Push never waits for the consumer: when the queue is full the oldest frame
// is discarded and a backpressure warning is logged at most once per warn
// interval. Stale audio is worth less than a short recognition gap.
type FrameQueue struct {
	mu   sync.Mutex
	buf  []types.AudioFrame
	head int
	size int

	notify chan struct{}

	dropped      atomic.Uint64
	logger       *slog.Logger
	warnInterval time.Duration
	lastWarn     time.Time
	unreported   uint64
}

// QueueOption configures a [FrameQueue].
type QueueOption func(*FrameQueue)

// WithQueueLogger sets the logger used for backpressure warnings.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *FrameQueue) { q.logger = l }
}

// WithWarnInterval sets the minimum gap between backpressure warnings.
func WithWarnInterval(d time.Duration) QueueOption {
	return func(q *FrameQueue) { q.warnInterval = d }
}

// NewFrameQueue returns a queue holding at most capacity frames. A capacity
// below 1 is treated as 1.
func NewFrameQueue(capacity int, opts ...QueueOption) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &FrameQueue{
		buf:          make([]types.AudioFrame, capacity),
		notify:       make(chan struct{}, 1),
		logger:       slog.Default(),
		warnInterval: defaultWarnInterval,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push appends frame. If the queue is full the oldest frame is dropped and
// Push reports true.
func (q *FrameQueue) Push(frame types.AudioFrame) (dropped bool) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.buf[q.head] = types.AudioFrame{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		dropped = true
		q.recordDropLocked()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = frame
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *FrameQueue) recordDropLocked() {
	total := q.dropped.Add(1)
	q.unreported++
	now := time.Now()
	if now.Sub(q.lastWarn) < q.warnInterval {
		return
	}
	q.logger.Warn("audio: frame queue full, dropping oldest frames",
		"dropped_since_last_warning", q.unreported,
		"dropped_total", total,
		"capacity", len(q.buf),
	)
	q.lastWarn = now
	q.unreported = 0
}

// Pop removes and returns the oldest frame, blocking until one is available
// or ctx is done.
func (q *FrameQueue) Pop(ctx context.Context) (types.AudioFrame, error) {
	for {
		if f, ok := q.TryPop(); ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return types.AudioFrame{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPop removes and returns the oldest frame without blocking.
func (q *FrameQueue) TryPop() (types.AudioFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return types.AudioFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = types.AudioFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, true
}

// Drain discards every buffered frame and returns how many were removed.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	for i := range q.buf {
		q.buf[i] = types.AudioFrame{}
	}
	q.head, q.size = 0, 0
	return n
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *FrameQueue) Cap() int { return len(q.buf) }

// Dropped returns the total number of frames discarded due to overflow.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }
