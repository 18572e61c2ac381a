// Package types defines the data that flows between the LinguaLive pipeline stages.
//
// Audio sources, decoders, translators and the broadcaster all exchange these
// values. Keeping them in one leaf package avoids import cycles between the
// provider packages and the internal pipeline.
package types

import (
	"strings"
	"time"
)

// AudioFrame is a fixed-length block of signed 16-bit mono samples.
//
// A frame is immutable once captured. Ownership passes from the audio source
// to the frame queue and from there to the recognition stage; nobody writes to
// Samples after the source hands the frame off.
type AudioFrame struct {
	// Samples holds little-endian decoded PCM, one int16 per sample.
	Samples []int16

	// SampleRate in Hz (16000 for every built-in source).
	SampleRate int

	// Captured is the wall-clock time at which the block was completed.
	Captured time.Time
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// EventKind distinguishes interim from final recognition hypotheses.
type EventKind int

const (
	// Partial is a revisable hypothesis for the current utterance.
	Partial EventKind = iota + 1

	// Final closes the current utterance and is never revised.
	Final
)

// String returns the lowercase label used in logs and metric attributes.
func (k EventKind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// RecognitionEvent is one hypothesis emitted by the recognition stage.
type RecognitionEvent struct {
	Kind EventKind
	Text string
}

// IsFinal reports whether the event closes an utterance.
func (e RecognitionEvent) IsFinal() bool { return e.Kind == Final }

// TranslationResult pairs the text of one FINAL event with its translation.
// Lang is the target language that was active when the translation was requested.
type TranslationResult struct {
	Source string
	Text   string
	Lang   string
}

// Message types on the wire.
const (
	MessageTranscript  = "transcript"
	MessageTranslation = "translation"
	MessageStatus      = "status"
	MessageError       = "error"
)

// OutboundMessage is the JSON unit pushed to connected clients.
//
// Only the fields relevant to Type are populated; the omitempty tags keep the
// wire shape identical to {type, final, text}, {type, text, lang},
// {type, text} for status and error messages.
type OutboundMessage struct {
	Type  string `json:"type"`
	Final *bool  `json:"final,omitempty"`
	Text  string `json:"text"`
	Lang  string `json:"lang,omitempty"`

	// Listening is set on status messages so late joiners learn the session state.
	Listening *bool `json:"listening,omitempty"`
}

// TranscriptMessage builds the message for a recognition event.
func TranscriptMessage(ev RecognitionEvent) OutboundMessage {
	final := ev.IsFinal()
	return OutboundMessage{Type: MessageTranscript, Final: &final, Text: ev.Text}
}

// TranslationMessage builds the message for a successful translation.
func TranslationMessage(r TranslationResult) OutboundMessage {
	return OutboundMessage{Type: MessageTranslation, Text: r.Text, Lang: r.Lang}
}

// StatusMessage builds a status message that also reports whether the session
// is listening.
func StatusMessage(text string, listening bool) OutboundMessage {
	return OutboundMessage{Type: MessageStatus, Text: text, Listening: &listening}
}

// ErrorMessage builds a non-fatal error message.
func ErrorMessage(text string) OutboundMessage {
	return OutboundMessage{Type: MessageError, Text: text}
}

// IsBlank reports whether s contains no translatable content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
