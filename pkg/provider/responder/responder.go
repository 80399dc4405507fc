// Package responder defines the Responder interface for the response
// generation step of the Handoff stage.
//
// A Responder receives the learner's recognised (and anonymised) question
// and returns the tutor's reply as plain text ready for synthesis. Backends
// range from a hosted tutoring flow to general chat-completion models; the
// echo backend repeats the question and needs no network at all.
//
// Implementations must be safe for concurrent use.
package responder

import "context"

// Request is a single turn.
type Request struct {
	// SessionID identifies the interaction, e.g. "CHIPPY_1a2b3c4d".
	SessionID string

	// LearnerID identifies the learner to backends that track progress.
	LearnerID string

	// Text is the learner's utterance.
	Text string
}

// Responder produces a reply for one learner turn.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// ResponderFunc adapts a plain function to [Responder].
type ResponderFunc func(ctx context.Context, req Request) (string, error)

// Respond implements [Responder].
func (f ResponderFunc) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// DefaultSystemPrompt is the persona used by chat-model backends unless
// overridden in configuration.
const DefaultSystemPrompt = `You are CHIPPY, a friendly and encouraging robot tutor for primary school students.
Speak in a warm, age-appropriate, conversational tone.
Keep answers short: two to four sentences that sound natural when read aloud.
Teach one small idea at a time and end with a simple question that checks understanding.
If the student seems confused, explain it again a different way.
Never use markdown, lists or emoji; your reply is spoken, not shown.`
