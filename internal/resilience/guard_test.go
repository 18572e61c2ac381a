package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	decodermock "github.com/MrWong99/lingualive/pkg/provider/decoder/mock"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
	translatemock "github.com/MrWong99/lingualive/pkg/provider/translate/mock"
)

func TestGuardedTranslator_FailsFastWhenOpen(t *testing.T) {
	inner := &translatemock.Translator{Failures: map[string]error{"hello": errTest}}
	g := NewGuardedTranslator(inner, Config{Name: "azure", MaxFailures: 2, ResetTimeout: time.Hour, Logger: quietLogger()})
	ctx := context.Background()

	for range 2 {
		if _, err := g.Translate(ctx, "hello", "it"); translate.KindOf(err) != translate.KindNetwork {
			t.Fatalf("Translate() = %v, want network error", err)
		}
	}
	_, err := g.Translate(ctx, "other", "it")
	if translate.KindOf(err) != translate.KindUnavailable || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Translate() = %v, want unavailable wrapping ErrCircuitOpen", err)
	}
	if n := inner.CallCount(); n != 2 {
		t.Errorf("inner calls = %d, want 2", n)
	}
	if g.Breaker().State() != StateOpen {
		t.Errorf("state = %v, want open", g.Breaker().State())
	}
}

func TestGuardedTranslator_PassesThrough(t *testing.T) {
	inner := &translatemock.Translator{}
	g := NewGuardedTranslator(inner, Config{Name: "mock", Logger: quietLogger()})
	got, err := g.Translate(context.Background(), "hello", "fr")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "fr:hello" {
		t.Errorf("Translate() = %q, want %q", got, "fr:hello")
	}
}

func TestDecoderFallback(t *testing.T) {
	primary := &decodermock.Provider{NewDecoderErr: errors.New("model missing")}
	secondaryDec := &decodermock.Decoder{}
	secondary := &decodermock.Provider{Decoder: secondaryDec}

	var selected string
	f := NewDecoderFallback("whisper", primary, Config{Logger: quietLogger()}, func(name string) { selected = name })
	f.Add("deepgram", secondary)

	dec, err := f.NewDecoder(context.Background(), decoder.Config{SampleRate: 16000, Language: "en"})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec != secondaryDec {
		t.Errorf("decoder = %T, want secondary's decoder", dec)
	}
	if selected != "deepgram" {
		t.Errorf("selected = %q, want deepgram", selected)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestDecoderFallback_AllFail(t *testing.T) {
	f := NewDecoderFallback("whisper", &decodermock.Provider{NewDecoderErr: errTest}, Config{Logger: quietLogger()}, nil)
	if _, err := f.NewDecoder(context.Background(), decoder.Config{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("NewDecoder() = %v, want ErrAllFailed", err)
	}
}
