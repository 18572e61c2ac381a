package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the file.
const (
	EnvTranslatorKey    = "LINGUALIVE_TRANSLATOR_KEY"
	EnvTranslatorRegion = "LINGUALIVE_TRANSLATOR_REGION"
	EnvDeepgramKey      = "LINGUALIVE_DEEPGRAM_KEY"
)

// Defaults applied by [LoadFromReader] to unset fields.
const (
	DefaultListenAddr      = ":8765"
	DefaultPingInterval    = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultClientQueue     = 256
	DefaultDevice          = "capture"
	DefaultRecognizer      = "whisper"
	DefaultTranslator      = "azure"
	DefaultSampleRate      = 16000
	DefaultBlockSize       = 8000
	DefaultQueueSize       = 64
	DefaultSpokenLanguage  = "en"
	DefaultTargetLanguage  = "fr"
	DefaultTimeout         = 5 * time.Second
	DefaultMaxInFlight     = 4
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second
)

// DefaultLanguages is the target list used when the file names none.
var DefaultLanguages = []Language{
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "es", Name: "Spanish"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "nl", Name: "Dutch"},
	{Code: "ru", Name: "Russian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh-Hans", Name: "Chinese (Simplified)"},
	{Code: "ar", Name: "Arabic"},
	{Code: "hi", Name: "Hindi"},
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":       {"capture", "discord"},
	"recognition": {"whisper", "deepgram"},
	"translation": {"azure", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := load(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, nil)
}

func load(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills every unset field with its default.
func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ClientQueue == 0 {
		s.ClientQueue = DefaultClientQueue
	}

	a := &cfg.Audio
	if a.Device.Name == "" {
		a.Device.Name = DefaultDevice
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.BlockSize == 0 {
		a.BlockSize = DefaultBlockSize
	}
	if a.QueueSize == 0 {
		a.QueueSize = DefaultQueueSize
	}

	if cfg.Recognition.Provider.Name == "" {
		cfg.Recognition.Provider.Name = DefaultRecognizer
	}
	if cfg.Recognition.Language == "" {
		cfg.Recognition.Language = DefaultSpokenLanguage
	}

	t := &cfg.Translation
	if t.Provider.Name == "" {
		t.Provider.Name = DefaultTranslator
	}
	if len(t.Languages) == 0 {
		t.Languages = slices.Clone(DefaultLanguages)
	}
	if t.DefaultLanguage == "" {
		// First listed language, which is DefaultTargetLanguage for the
		// built-in list.
		t.DefaultLanguage = t.Languages[0].Code
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTimeout
	}
	if t.MaxInFlight == 0 {
		t.MaxInFlight = DefaultMaxInFlight
	}
	if t.CircuitBreaker.MaxFailures == 0 {
		t.CircuitBreaker.MaxFailures = DefaultBreakerFailures
	}
	if t.CircuitBreaker.ResetTimeout == 0 {
		t.CircuitBreaker.ResetTimeout = DefaultBreakerReset
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "lingualive"
	}
}

// ApplyEnv overrides secrets with the environment variables reported by
// lookup. The Deepgram key applies to every deepgram entry, primary or
// fallback.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvTranslatorKey); ok && v != "" {
		cfg.Translation.Provider.APIKey = v
	}
	if v, ok := lookup(EnvTranslatorRegion); ok && v != "" {
		if cfg.Translation.Provider.Options == nil {
			cfg.Translation.Provider.Options = make(map[string]any)
		}
		cfg.Translation.Provider.Options["region"] = v
	}
	if v, ok := lookup(EnvDeepgramKey); ok && v != "" {
		if cfg.Recognition.Provider.Name == "deepgram" {
			cfg.Recognition.Provider.APIKey = v
		}
		for i := range cfg.Recognition.Fallbacks {
			if cfg.Recognition.Fallbacks[i].Name == "deepgram" {
				cfg.Recognition.Fallbacks[i].APIKey = v
			}
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	s := cfg.Server
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if s.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if s.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("server.ping_interval %v must not be negative", s.PingInterval))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout %v must be positive", s.WriteTimeout))
	}
	if s.ClientQueue <= 0 {
		errs = append(errs, fmt.Errorf("server.client_queue %d must be positive", s.ClientQueue))
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	a := cfg.Audio
	if a.Device.Name == "" {
		errs = append(errs, errors.New("audio.device.name is required"))
	}
	validateProviderName("audio", a.Device.Name)
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", a.BlockSize))
	}
	if a.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size %d must be positive", a.QueueSize))
	}

	// Recognition
	r := cfg.Recognition
	if r.Provider.Name == "" {
		errs = append(errs, errors.New("recognition.provider.name is required"))
	}
	validateProviderName("recognition", r.Provider.Name)
	for i, fb := range r.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("recognition.fallbacks[%d].name is required", i))
		}
		validateProviderName("recognition", fb.Name)
	}

	// Translation
	t := cfg.Translation
	if t.Provider.Name == "" {
		errs = append(errs, errors.New("translation.provider.name is required"))
	}
	validateProviderName("translation", t.Provider.Name)
	seen := make(map[string]int, len(t.Languages))
	for i, l := range t.Languages {
		prefix := fmt.Sprintf("translation.languages[%d]", i)
		if l.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
			continue
		}
		if prev, ok := seen[l.Code]; ok {
			errs = append(errs, fmt.Errorf("%s.code %q is a duplicate of translation.languages[%d]", prefix, l.Code, prev))
		}
		seen[l.Code] = i
	}
	if t.DefaultLanguage != "" && len(t.Languages) > 0 && !t.HasLanguage(t.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("translation.default_language %q is not in translation.languages", t.DefaultLanguage))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("translation.timeout %v must be positive", t.Timeout))
	}
	if t.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("translation.max_in_flight %d must be positive", t.MaxInFlight))
	}
	if t.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("translation.circuit_breaker.max_failures %d must not be negative", t.CircuitBreaker.MaxFailures))
	}
	if t.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("translation.circuit_breaker.reset_timeout %v must not be negative", t.CircuitBreaker.ResetTimeout))
	}

	// Telemetry
	if ratio := cfg.Telemetry.TraceSampleRatio; ratio < 0 || ratio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", ratio))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
