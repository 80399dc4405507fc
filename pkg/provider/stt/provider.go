// Package stt defines the Recognizer interface for speech-to-text backends.
//
// A Recognizer wraps a request/response transcription service (Azure Speech,
// a whisper.cpp server, the OpenAI audio API or a local whisper model) and
// exposes a single one-shot call: a sealed utterance goes in, the complete
// transcript comes out. Recognition is all-or-nothing; a Recognizer never
// returns partial text alongside an error.
//
// Failures are reported as [*Error] values carrying a [Kind] so that callers
// can decide whether a retry may succeed. Implementations must be safe for
// concurrent use and must hold no per-call state between calls.
package stt

import "context"

// Recognizer is the abstraction over any speech-to-text backend.
type Recognizer interface {
	// Recognize transcribes req.Audio. It returns [ErrNoSpeech] (possibly
	// wrapped) when the service heard nothing intelligible and an [*Error]
	// for classified transport or service failures.
	Recognize(ctx context.Context, req Request) (Result, error)
}

// RecognizerFunc adapts a plain function to [Recognizer].
type RecognizerFunc func(ctx context.Context, req Request) (Result, error)

// Recognize implements [Recognizer].
func (f RecognizerFunc) Recognize(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
