package audio_test

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
)

func frame(id int16) types.AudioFrame {
	return types.AudioFrame{Samples: []int16{id}, SampleRate: 16000}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(4, audio.WithQueueLogger(quietLogger()))
	for i := range int16(3) {
		if q.Push(frame(i)) {
			t.Fatalf("Push(%d) reported drop on non-full queue", i)
		}
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	ctx := context.Background()
	for want := range int16(3) {
		f, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if f.Samples[0] != want {
			t.Errorf("Pop() = frame %d, want %d", f.Samples[0], want)
		}
	}
}

func TestFrameQueue_DropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	var drops int
	q := audio.NewFrameQueue(3, audio.WithQueueLogger(quietLogger()))
	for i := range int16(10) {
		if q.Push(frame(i)) {
			drops++
		}
	}

	if got := q.Dropped(); got != 7 {
		t.Errorf("Dropped() = %d, want 7", got)
	}
	if drops != 7 {
		t.Errorf("Push reported %d drops, want 7", drops)
	}
	for _, want := range []int16{7, 8, 9} {
		f, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop: queue empty, want frame %d", want)
		}
		if f.Samples[0] != want {
			t.Errorf("TryPop() = frame %d, want %d", f.Samples[0], want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned a frame")
	}
}

func TestFrameQueue_ProducerNeverBlocks(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(8, audio.WithQueueLogger(quietLogger()))
	const ceiling = 50 * time.Millisecond

	// Nobody consumes: every push past capacity must still return promptly.
	var worst time.Duration
	for i := range 5000 {
		start := time.Now()
		q.Push(frame(int16(i)))
		if d := time.Since(start); d > worst {
			worst = d
		}
	}
	if worst > ceiling {
		t.Errorf("slowest Push took %v, want under %v", worst, ceiling)
	}
	if q.Len() != q.Cap() {
		t.Errorf("Len() = %d, want capacity %d", q.Len(), q.Cap())
	}
}

func TestFrameQueue_SlowConsumerKeepsNewest(t *testing.T) {
	q := audio.NewFrameQueue(4, audio.WithQueueLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int16
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f, err := q.Pop(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			seen = append(seen, f.Samples[0])
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	for i := range int16(500) {
		q.Push(frame(i))
	}
	deadline := time.After(2 * time.Second)
	for q.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("consumer did not drain queue")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("frames out of order: %d after %d", seen[i], seen[i-1])
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != 499 {
		t.Errorf("last consumed frame = %v, want 499", seen)
	}
}

func TestFrameQueue_PopHonoursContext(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFrameQueue_PopWakesOnPush(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(2)
	got := make(chan int16, 1)
	go func() {
		f, err := q.Pop(context.Background())
		if err == nil {
			got <- f.Samples[0]
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(frame(42))

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestFrameQueue_Drain(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(5)
	for i := range int16(4) {
		q.Push(frame(i))
	}
	if n := q.Drain(); n != 4 {
		t.Errorf("Drain() = %d, want 4", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", q.Len())
	}

	q.Push(frame(9))
	f, ok := q.TryPop()
	if !ok || f.Samples[0] != 9 {
		t.Errorf("TryPop() after Drain = %v, %v; want frame 9", f.Samples, ok)
	}
}

func TestNewFrameQueue_MinimumCapacity(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(0)
	if q.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", q.Cap())
	}
}
