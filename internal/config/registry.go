package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of kind T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	var zero T
	factory, ok := f.m[entry.Name]
	if !ok {
		return zero, fmt.Errorf("%w: %s %q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return zero, fmt.Errorf("config: create %s provider %q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for name := range f.m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio factories[audio.Device]
	stt   factories[stt.Provider]
	llm   factories[llm.Provider]
	tts   factories[tts.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio: newFactories[audio.Device]("audio"),
		stt:   newFactories[stt.Provider]("stt"),
		llm:   newFactories[llm.Provider]("llm"),
		tts:   newFactories[tts.Provider]("tts"),
	}
}

// RegisterAudio registers a sound device factory under name. A later call
// with the same name replaces the earlier one.
func (r *Registry) RegisterAudio(name string, f Factory[audio.Device]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = f
}

// RegisterSTT registers a speech-to-text factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterLLM registers a language model factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterTTS registers a text-to-speech factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

// CreateAudio builds the sound device named by entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.create(entry)
}

// CreateSTT builds the speech-to-text provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM builds the language model provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateTTS builds the text-to-speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// Names returns the sorted registered names for kind ("audio", "stt", "llm"
// or "tts"). An unknown kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "audio":
		return r.audio.names()
	case "stt":
		return r.stt.names()
	case "llm":
		return r.llm.names()
	case "tts":
		return r.tts.names()
	}
	return nil
}
