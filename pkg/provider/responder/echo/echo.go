// Package echo provides a Responder that repeats the learner's words. It is
// the default when no response backend is configured and is handy for
// testing the audio path end to end.
package echo

import (
	"context"
	"fmt"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

var _ responder.Responder = Responder{}

// Responder replies with "I heard you say: <text>".
type Responder struct{}

// Respond implements [responder.Responder].
func (Responder) Respond(_ context.Context, req responder.Request) (string, error) {
	return fmt.Sprintf("I heard you say: %s", req.Text), nil
}
