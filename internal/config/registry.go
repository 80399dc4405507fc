package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]func(ProviderEntry) (stt.Recognizer, error)
	responder map[string]func(ProviderEntry) (responder.Responder, error)
	tts       map[string]func(ProviderEntry) (tts.Synthesizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]func(ProviderEntry) (stt.Recognizer, error)),
		responder: make(map[string]func(ProviderEntry) (responder.Responder, error)),
		tts:       make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
	}
}

// RegisterSTT registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterResponder registers a responder factory under name.
func (r *Registry) RegisterResponder(name string, factory func(ProviderEntry) (responder.Responder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder[name] = factory
}

// RegisterTTS registers a synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateSTT instantiates a recognizer using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Recognizer, error) {
	return create(&r.mu, r.stt, "stt", entry)
}

// CreateResponder instantiates a responder using the factory registered under entry.Name.
func (r *Registry) CreateResponder(entry ProviderEntry) (responder.Responder, error) {
	return create(&r.mu, r.responder, "responder", entry)
}

// CreateTTS instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	return create(&r.mu, r.tts, "tts", entry)
}

// Names returns the sorted provider names registered for kind ("stt",
// "responder" or "tts").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "responder":
		names = keys(r.responder)
	case "tts":
		names = keys(r.tts)
	}
	slices.Sort(names)
	return names
}

func create[T any](mu *sync.RWMutex, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := factories[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
