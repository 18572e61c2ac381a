// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the LinguaLive server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the LinguaLive server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown and empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for LinguaLive.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Translation TranslationConfig `yaml:"translation"`
	Session     SessionConfig     `yaml:"session"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8765").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir, when set, is served at / for the browser client.
	StaticDir string `yaml:"static_dir"`

	// AllowedOrigins lists host patterns accepted for cross-origin WebSocket
	// connections (e.g., "localhost:*", "*.example.com"). Same-origin requests
	// are always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// PingInterval is the keepalive period for client connections.
	PingInterval time.Duration `yaml:"ping_interval"`

	// WriteTimeout bounds a single write to a client.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ClientQueue is the number of messages buffered per client before the
	// client is dropped as too slow.
	ClientQueue int `yaml:"client_queue"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig selects and tunes the audio source.
type AudioConfig struct {
	// Device selects the registered audio device ("capture", "discord").
	Device ProviderEntry `yaml:"device"`

	// SampleRate of captured frames in Hz.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per frame.
	BlockSize int `yaml:"block_size"`

	// QueueSize is the number of frames buffered between capture and
	// recognition before the oldest is dropped.
	QueueSize int `yaml:"queue_size"`
}

// RecognitionConfig selects the speech recognition engine.
type RecognitionConfig struct {
	// Provider is the primary decoder ("whisper", "deepgram").
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary cannot be constructed.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Language is the spoken language code.
	Language string `yaml:"language"`

	// Glossary lists terms that final transcripts are corrected towards.
	// Hot-reloadable.
	Glossary []string `yaml:"glossary"`
}

// TranslationConfig selects the translator and target languages.
type TranslationConfig struct {
	// Provider is the translator ("azure", "openai", or any any-llm backend).
	Provider ProviderEntry `yaml:"provider"`

	// DefaultLanguage is the target language until a client picks another.
	// Hot-reloadable.
	DefaultLanguage string `yaml:"default_language"`

	// Languages lists the selectable target languages. Hot-reloadable.
	Languages []Language `yaml:"languages"`

	// Timeout bounds a single translation request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxInFlight caps concurrent translation requests.
	MaxInFlight int `yaml:"max_in_flight"`

	// CircuitBreaker guards the translator.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// Language is a selectable translation target.
type Language struct {
	// Code is the language code sent to the translator (e.g., "de", "zh-Hans").
	Code string `yaml:"code" json:"code"`

	// Name is the human-readable label.
	Name string `yaml:"name" json:"name"`
}

// BreakerConfig tunes the translator circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// SessionConfig controls how the listening session reacts to clients.
type SessionConfig struct {
	// AutoStart starts listening when the first client connects.
	AutoStart bool `yaml:"auto_start"`

	// StopWhenIdle stops listening when the last client disconnects.
	StopWhenIdle bool `yaml:"stop_when_idle"`
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name.
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of traces sampled, in [0, 1].
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "azure", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "nova-3") or, for whisper, the path to the model file.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// String returns the option value under key, or "" when it is absent or not
// a string.
func (e ProviderEntry) String(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// Int returns the option value under key as an int. YAML integers decode as
// int; whole floats are accepted too.
func (e ProviderEntry) Int(key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// Float returns the option value under key as a float64.
func (e ProviderEntry) Float(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Duration returns the option value under key parsed as a duration string
// (e.g., "500ms").
func (e ProviderEntry) Duration(key string) (time.Duration, bool) {
	s := e.String(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Strings returns the option value under key as a string slice.
func (e ProviderEntry) Strings(key string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HasLanguage reports whether code is one of the configured target languages.
func (c *TranslationConfig) HasLanguage(code string) bool {
	for _, l := range c.Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// LanguageCodes returns the configured language codes in order.
func (c *TranslationConfig) LanguageCodes() []string {
	out := make([]string, len(c.Languages))
	for i, l := range c.Languages {
		out[i] = l.Code
	}
	return out
}
