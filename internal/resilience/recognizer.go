package resilience

import (
	"context"
	"errors"

	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

// RecognizerFallback implements [stt.Recognizer] with failover across
// several recognition backends, each behind its own circuit breaker.
//
// Only transport-level failures move on to the next backend. "No speech"
// is a healthy answer and is returned as-is; non-retriable failures (auth,
// malformed) are returned as-is because the request, not the backend, is at
// fault. The error returned after every backend failed still carries the
// last backend's [*stt.Error], so retry policies upstream keep working.
type RecognizerFallback struct {
	group *FallbackGroup[stt.Recognizer]
}

var _ stt.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred backend.
func NewRecognizerFallback(primary stt.Recognizer, primaryName string, cb CircuitBreakerConfig) *RecognizerFallback {
	cb.IsFailure = func(err error) bool {
		return stt.Classify(err).Retriable() || errors.Is(err, ErrCircuitOpen)
	}
	return &RecognizerFallback{
		group: NewFallbackGroup(primary, primaryName, FallbackConfig{
			CircuitBreaker: cb,
			Final: func(err error) bool {
				if errors.Is(err, stt.ErrNoSpeech) {
					return true
				}
				kind := stt.Classify(err)
				return kind != 0 && !kind.Retriable()
			},
		}),
	}
}

// AddFallback registers an additional backend.
func (f *RecognizerFallback) AddFallback(name string, r stt.Recognizer) {
	f.group.AddFallback(name, r)
}

// Names returns the backend names in try order.
func (f *RecognizerFallback) Names() []string { return f.group.Names() }

// Recognize implements [stt.Recognizer].
func (f *RecognizerFallback) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(name string, r stt.Recognizer) (stt.Result, error) {
		res, err := r.Recognize(ctx, req)
		if err == nil && res.Provider == "" {
			res.Provider = name
		}
		return res, err
	})
}
