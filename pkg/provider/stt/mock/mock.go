// Package mock provides a test double for the [stt.Recognizer] interface.
//
// Recognizer plays back a script of responses, one per call, and records
// every request it receives.
//
// Example:
//
//	r := &mock.Recognizer{
//	    Responses: []mock.Response{
//	        {Err: stt.Transient("mock", io.ErrUnexpectedEOF)},
//	        {Result: stt.Result{Text: "hello"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Response is one scripted reply.
type Response struct {
	Result stt.Result
	Err    error
}

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Req is the request passed to Recognize.
	Req stt.Request
}

// Recognizer is a mock implementation of [stt.Recognizer].
type Recognizer struct {
	mu sync.Mutex

	// Responses are returned in call order. Once exhausted, Result/Err are
	// returned for every further call.
	Responses []Response

	// Result is the fallback result once Responses is exhausted.
	Result stt.Result

	// Err is the fallback error once Responses is exhausted.
	Err error

	// Block makes Recognize wait for ctx to be done and return ctx.Err().
	Block bool

	// Started, if non-nil, receives a value at the start of every call.
	// The send does not block.
	Started chan struct{}

	// RecognizeCalls records every call.
	RecognizeCalls []RecognizeCall
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	r.mu.Lock()
	n := len(r.RecognizeCalls)
	r.RecognizeCalls = append(r.RecognizeCalls, RecognizeCall{Req: req})
	resp := Response{Result: r.Result, Err: r.Err}
	if n < len(r.Responses) {
		resp = r.Responses[n]
	}
	block, started := r.Block, r.Started
	r.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block {
		<-ctx.Done()
		return stt.Result{}, ctx.Err()
	}
	return resp.Result, resp.Err
}

// CallCount returns the number of Recognize calls so far.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RecognizeCalls)
}
