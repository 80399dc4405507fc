// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A Synthesizer turns the reply text produced in the Handoff stage into a
// finished [audio.Clip] that an [audio.Player] can render. Synthesis is
// one-shot: the whole reply is known before synthesis starts, so adapters
// that stream internally (ElevenLabs) collect their chunks before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text as speech. The returned clip holds signed
	// 16-bit PCM at the rate reported in the clip.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// SynthesizerFunc adapts a plain function to [Synthesizer].
type SynthesizerFunc func(ctx context.Context, text string) (audio.Clip, error)

// Synthesize implements [Synthesizer].
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	return f(ctx, text)
}
