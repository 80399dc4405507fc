package handoff

import "context"

// Anonymizer masks personal information before the learner's words leave the
// device and puts it back into the reply. Implementations keep whatever
// mapping they need keyed by session ID; Restore is always called with the
// same session ID as the preceding Anonymize.
type Anonymizer interface {
	Anonymize(ctx context.Context, sessionID, text string) (string, error)
	Restore(ctx context.Context, sessionID, text string) (string, error)
}

// Passthrough is an [Anonymizer] that returns text unchanged.
type Passthrough struct{}

var _ Anonymizer = Passthrough{}

// Anonymize implements [Anonymizer].
func (Passthrough) Anonymize(_ context.Context, _, text string) (string, error) { return text, nil }

// Restore implements [Anonymizer].
func (Passthrough) Restore(_ context.Context, _, text string) (string, error) { return text, nil }
