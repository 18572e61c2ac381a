package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DeviceFactory builds an audio device. It receives the audio section so the
// device captures at the configured rate and block size.
type DeviceFactory func(entry ProviderEntry, cfg AudioConfig) (audio.Device, error)

// DecoderFactory builds a speech recognition provider.
type DecoderFactory func(entry ProviderEntry) (decoder.Provider, error)

// TranslatorFactory builds a translator.
type TranslatorFactory func(entry ProviderEntry) (translate.Translator, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	devices     map[string]DeviceFactory
	decoders    map[string]DecoderFactory
	translators map[string]TranslatorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		devices:     make(map[string]DeviceFactory),
		decoders:    make(map[string]DecoderFactory),
		translators: make(map[string]TranslatorFactory),
	}
}

// RegisterDevice registers an audio device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// RegisterDecoder registers a decoder provider factory under name.
func (r *Registry) RegisterDecoder(name string, factory DecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = factory
}

// RegisterTranslator registers a translator factory under name.
func (r *Registry) RegisterTranslator(name string, factory TranslatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[name] = factory
}

// CreateDevice instantiates an audio device using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateDevice(entry ProviderEntry, cfg AudioConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.devices[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, cfg)
}

// CreateDecoder instantiates a decoder provider using the factory registered under entry.Name.
func (r *Registry) CreateDecoder(entry ProviderEntry) (decoder.Provider, error) {
	r.mu.RLock()
	factory, ok := r.decoders[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognition/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranslator instantiates a translator using the factory registered under entry.Name.
func (r *Registry) CreateTranslator(entry ProviderEntry) (translate.Translator, error) {
	r.mu.RLock()
	factory, ok := r.translators[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted provider names registered for kind ("audio",
// "recognition" or "translation").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "audio":
		for n := range r.devices {
			names = append(names, n)
		}
	case "recognition":
		for n := range r.decoders {
			names = append(names, n)
		}
	case "translation":
		for n := range r.translators {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
