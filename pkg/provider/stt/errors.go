package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSpeech is returned when the service processed the audio but found no
// recognisable speech. It is a semantic outcome, not a failure.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Kind classifies a recognition failure.
type Kind int

const (
	// KindTransient covers network timeouts, connection failures and 5xx
	// responses. Retriable.
	KindTransient Kind = iota + 1

	// KindQuota is a rate-limit or quota rejection (HTTP 429). Retriable.
	KindQuota

	// KindAuth is an authentication or authorisation failure. Not retriable.
	KindAuth

	// KindMalformed is a request the service refused as invalid. Not
	// retriable.
	KindMalformed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retriable reports whether a failure of kind k may succeed on retry.
func (k Kind) Retriable() bool {
	return k == KindTransient || k == KindQuota
}

// Error is a classified recognition failure.
type Error struct {
	Kind Kind

	// Provider names the backend that failed.
	Provider string

	// StatusCode is the HTTP status, if the failure came from a response.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt: %s: %s failure (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stt: %s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether the failure may succeed on retry.
func (e *Error) Retriable() bool { return e.Kind.Retriable() }

// KindForStatus maps an HTTP status code onto the failure taxonomy.
// 401/403 are auth, 429 is quota, 408 and 5xx are transient and every other
// 4xx is malformed. Statuses below 400 return 0.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	case status >= 400:
		return KindMalformed
	default:
		return 0
	}
}

// StatusError builds an [*Error] for an HTTP response with a failing status.
func StatusError(provider string, status int, body string) *Error {
	kind := KindForStatus(status)
	if kind == 0 {
		kind = KindMalformed
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: status,
		Err:        fmt.Errorf("%s: %s", http.StatusText(status), body),
	}
}

// Transient wraps err as a transient failure of provider.
func Transient(provider string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Err: err}
}

// Classify returns the [Kind] of err. Classified [*Error] values keep their
// kind. Unclassified errors (network failures, deadline expiry) are
// transient. Returns 0 for nil, context cancellation and [ErrNoSpeech].
func Classify(err error) Kind {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoSpeech) {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// IsRetriable reports whether err is a recognition failure worth retrying.
func IsRetriable(err error) bool {
	return Classify(err).Retriable()
}
