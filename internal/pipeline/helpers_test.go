package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lingualive/pkg/types"
)

// recorder is a Publisher that keeps every message.
type recorder struct {
	mu   sync.Mutex
	msgs []types.OutboundMessage
}

func (r *recorder) Publish(msg types.OutboundMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []types.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.OutboundMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// waitLen waits until at least n messages were published.
func (r *recorder) waitLen(t *testing.T, n int) []types.OutboundMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := r.snapshot()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d messages, got %s", n, describe(got))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// describe renders messages compactly, e.g. "T~hell T=hello X[it]ciao E!boom".
func describe(msgs []types.OutboundMessage) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += " "
		}
		out += label(m)
	}
	return out
}

func label(m types.OutboundMessage) string {
	switch m.Type {
	case types.MessageTranscript:
		if m.Final != nil && *m.Final {
			return "T=" + m.Text
		}
		return "T~" + m.Text
	case types.MessageTranslation:
		return fmt.Sprintf("X[%s]%s", m.Lang, m.Text)
	case types.MessageError:
		return "E!"
	default:
		return m.Type + ":" + m.Text
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func frame(n int) types.AudioFrame {
	return types.AudioFrame{Samples: make([]int16, n), SampleRate: 16000}
}
