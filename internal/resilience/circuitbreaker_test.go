package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestBreaker(clock *fakeClock, cfg Config) *Breaker {
	cfg.Logger = quietLogger()
	cfg.now = clock.now
	return NewBreaker(cfg)
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(Config{Name: "test"})
	if b.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", b.cfg.MaxFailures)
	}
	if b.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", b.cfg.ResetTimeout)
	}
	if b.cfg.HalfOpenMax != 1 {
		t.Errorf("HalfOpenMax = %d, want 1", b.cfg.HalfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, Config{MaxFailures: 3, ResetTimeout: time.Minute})

	for range 3 {
		if err := b.Execute(fail); !errors.Is(err, errTest) {
			t.Fatalf("Execute() = %v, want errTest passed through", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, Config{MaxFailures: 3})

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, Config{MaxFailures: 1})

	err := b.Execute(func() error { return fmt.Errorf("translate: %w", context.Canceled) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after cancellation", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"success closes", succeed, StateClosed},
		{"failure reopens", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := newTestBreaker(clock, Config{MaxFailures: 1, ResetTimeout: 10 * time.Second})
			_ = b.Execute(fail)

			clock.advance(9 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("state before timeout = %v, want open", b.State())
			}
			clock.advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after timeout = %v, want half-open", b.State())
			}

			_ = b.Execute(tt.probe)
			if got := b.State(); got != tt.want {
				t.Errorf("state after probe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, Config{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	_ = b.Execute(fail)
	clock.advance(time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_ResetCloses(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, Config{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = b.Execute(fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
	if err := b.Execute(succeed); err != nil {
		t.Errorf("Execute after Reset = %v", err)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var (
		mu   sync.Mutex
		seen []string
	)
	b := newTestBreaker(clock, Config{
		Name:         "azure",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			seen = append(seen, name+":"+from.String()+">"+to.String())
			mu.Unlock()
		},
	})

	_ = b.Execute(fail)
	clock.advance(time.Second)
	_ = b.Execute(succeed)

	want := []string{"azure:closed>open", "azure:open>half-open", "azure:half-open>closed"}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	b := NewBreaker(Config{MaxFailures: 50, Logger: quietLogger()})
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				if (i+j)%3 == 0 {
					_ = b.Execute(fail)
				} else {
					_ = b.Execute(succeed)
				}
			}
		}()
	}
	wg.Wait()
	_ = b.State()
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
