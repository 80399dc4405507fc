// Package mock provides a test double for the [responder.Responder]
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

var _ responder.Responder = (*Responder)(nil)

// Responder is a mock implementation of [responder.Responder].
type Responder struct {
	mu sync.Mutex

	// Reply is returned by every successful call.
	Reply string

	// Err, if non-nil, is returned instead of Reply.
	Err error

	// Block makes Respond wait for ctx to be done and return ctx.Err().
	Block bool

	// Requests records every call.
	Requests []responder.Request
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, req responder.Request) (string, error) {
	r.mu.Lock()
	r.Requests = append(r.Requests, req)
	reply, err, block := r.Reply, r.Err, r.Block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Calls returns a copy of the recorded requests.
func (r *Responder) Calls() []responder.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]responder.Request(nil), r.Requests...)
}
